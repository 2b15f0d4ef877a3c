package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// JobService covers the marketplace job lifecycle.
type JobService interface {
	CreateJob(ctx context.Context, clientID int64, job *domain.MarketplaceJob) (*domain.MarketplaceJob, error)
	GetJob(ctx context.Context, jobID int64) (*domain.MarketplaceJob, error)
	ListJobsByClient(ctx context.Context, clientID int64) ([]*domain.MarketplaceJob, error)
	UpdateJobStatus(ctx context.Context, jobID, clientID int64, to domain.JobStatus) (*domain.MarketplaceJob, error)
}

type JobsHandler struct {
	jobService JobService
	logger     *zap.Logger
}

func NewJobsHandler(jobService JobService, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		jobService: jobService,
		logger:     logger,
	}
}

type createJobRequest struct {
	JobType         string              `json:"job_type"`
	Location        string              `json:"location"`
	UrgencyLevel    domain.UrgencyLevel `json:"urgency_level"`
	EstimatedBudget int64               `json:"estimated_budget"`
	DateRequired    *time.Time          `json:"date_required,omitempty"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
}

func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	clientID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	job := &domain.MarketplaceJob{
		JobType:         req.JobType,
		Location:        req.Location,
		UrgencyLevel:    req.UrgencyLevel,
		EstimatedBudget: req.EstimatedBudget,
	}
	if req.DateRequired != nil {
		job.DateRequired = *req.DateRequired
	}
	if req.ExpiresAt != nil {
		job.ExpiresAt = *req.ExpiresAt
	}

	created, err := h.jobService.CreateJob(r.Context(), clientID, job)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusCreated, "job posted", created)
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID")
	if err != nil {
		writeValidation(w, h.logger, "invalid job id")
		return
	}

	job, err := h.jobService.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "job", job)
}

func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	clientID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.jobService.ListJobsByClient(r.Context(), clientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "jobs", jobs)
}

type jobStatusRequest struct {
	Status domain.JobStatus `json:"status"`
}

func (h *JobsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req jobStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	job, err := h.jobService.UpdateJobStatus(r.Context(), jobID, clientID, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "job status updated", job)
}

// pathID parses a numeric chi URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
