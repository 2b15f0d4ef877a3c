package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// ApplicationService covers the application lifecycle.
type ApplicationService interface {
	CreateApplication(ctx context.Context, tradieID int64, app *domain.JobApplication) (*domain.JobApplication, error)
	GetApplication(ctx context.Context, applicationID, actorID int64) (*domain.JobApplication, error)
	ListByJob(ctx context.Context, jobID, clientID int64) ([]*domain.JobApplication, error)
	ListByTradie(ctx context.Context, tradieID int64) ([]*domain.JobApplication, error)
	UpdateApplicationStatus(ctx context.Context, applicationID, clientID int64, to domain.ApplicationStatus) (*domain.JobApplication, error)
	WithdrawApplication(ctx context.Context, applicationID, tradieID int64, forgoRefund bool) (*domain.JobApplication, error)
}

type ApplicationsHandler struct {
	applicationService ApplicationService
	logger             *zap.Logger
}

func NewApplicationsHandler(applicationService ApplicationService, logger *zap.Logger) *ApplicationsHandler {
	return &ApplicationsHandler{
		applicationService: applicationService,
		logger:             logger,
	}
}

type createApplicationRequest struct {
	MarketplaceJobID int64  `json:"marketplace_job_id"`
	CustomQuote      int64  `json:"custom_quote"`
	ProposedTimeline string `json:"proposed_timeline"`
}

func (h *ApplicationsHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	tradieID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	app, err := h.applicationService.CreateApplication(r.Context(), tradieID, &domain.JobApplication{
		MarketplaceJobID: req.MarketplaceJobID,
		CustomQuote:      req.CustomQuote,
		ProposedTimeline: req.ProposedTimeline,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusCreated, "application submitted", app)
}

func (h *ApplicationsHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	actorID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	applicationID, err := pathID(r, "applicationID")
	if err != nil {
		writeValidation(w, h.logger, "invalid application id")
		return
	}

	app, err := h.applicationService.GetApplication(r.Context(), applicationID, actorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "application", app)
}

func (h *ApplicationsHandler) ListByJob(w http.ResponseWriter, r *http.Request) {
	clientID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobID, err := pathID(r, "jobID")
	if err != nil {
		writeValidation(w, h.logger, "invalid job id")
		return
	}

	apps, err := h.applicationService.ListByJob(r.Context(), jobID, clientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "applications", apps)
}

func (h *ApplicationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	tradieID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	apps, err := h.applicationService.ListByTradie(r.Context(), tradieID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "applications", apps)
}

type applicationStatusRequest struct {
	Status domain.ApplicationStatus `json:"status"`
}

func (h *ApplicationsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	clientID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	applicationID, err := pathID(r, "applicationID")
	if err != nil {
		writeValidation(w, h.logger, "invalid application id")
		return
	}

	var req applicationStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	app, err := h.applicationService.UpdateApplicationStatus(r.Context(), applicationID, clientID, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "application status updated", app)
}

type withdrawRequest struct {
	ForgoRefund bool `json:"forgo_refund"`
}

func (h *ApplicationsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	tradieID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	applicationID, err := pathID(r, "applicationID")
	if err != nil {
		writeValidation(w, h.logger, "invalid application id")
		return
	}

	// The body is optional; an empty one keeps the refund.
	var req withdrawRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidation(w, h.logger, "invalid request body")
			return
		}
	}

	app, err := h.applicationService.WithdrawApplication(r.Context(), applicationID, tradieID, req.ForgoRefund)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "application withdrawn", app)
}
