package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// CreditService covers balances, purchases and the transaction history.
type CreditService interface {
	GetBalance(ctx context.Context, accountID int64) (*domain.CreditBalance, error)
	GetDashboard(ctx context.Context, accountID int64) (*domain.Dashboard, error)
	GetTransactions(ctx context.Context, accountID int64, limit int) ([]*domain.CreditTransaction, error)
	PurchaseCredits(ctx context.Context, accountID int64, packageType, paymentMethodID string) (*domain.CreditBalance, error)
	CheckSufficiency(ctx context.Context, accountID int64, usageType domain.UsageType) (bool, int, error)
	ListPolicies() []domain.UsagePolicy
	ListPackages() []domain.CreditPackage
}

// AutoTopupService manages the per-account auto-topup policy.
type AutoTopupService interface {
	GetPolicy(ctx context.Context, accountID int64) (*domain.AutoTopupPolicy, error)
	Configure(ctx context.Context, policy *domain.AutoTopupPolicy) (*domain.AutoTopupPolicy, error)
	UpdatePaymentMethod(ctx context.Context, accountID int64, paymentMethodID string) (*domain.AutoTopupPolicy, error)
}

type CreditsHandler struct {
	creditService CreditService
	topupService  AutoTopupService
	logger        *zap.Logger
}

func NewCreditsHandler(creditService CreditService, topupService AutoTopupService, logger *zap.Logger) *CreditsHandler {
	return &CreditsHandler{
		creditService: creditService,
		topupService:  topupService,
		logger:        logger,
	}
}

func (h *CreditsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	balance, err := h.creditService.GetBalance(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "balance", balance)
}

func (h *CreditsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	dashboard, err := h.creditService.GetDashboard(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "dashboard", dashboard)
}

func (h *CreditsHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeValidation(w, h.logger, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	transactions, err := h.creditService.GetTransactions(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "transactions", transactions)
}

type purchaseRequest struct {
	PackageType     string `json:"package_type"`
	PaymentMethodID string `json:"payment_method_id"`
}

func (h *CreditsHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	balance, err := h.creditService.PurchaseCredits(r.Context(), accountID, req.PackageType, req.PaymentMethodID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "credits purchased", balance)
}

func (h *CreditsHandler) CheckSufficiency(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	usageType := domain.UsageType(r.URL.Query().Get("usage_type"))
	sufficient, required, err := h.creditService.CheckSufficiency(r.Context(), accountID, usageType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "sufficiency", map[string]any{
		"sufficient":       sufficient,
		"credits_required": required,
	})
}

func (h *CreditsHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.logger, http.StatusOK, "packages", h.creditService.ListPackages())
}

func (h *CreditsHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.logger, http.StatusOK, "usage policies", h.creditService.ListPolicies())
}

func (h *CreditsHandler) GetAutoTopup(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	policy, err := h.topupService.GetPolicy(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "auto-topup policy", policy)
}

type autoTopupRequest struct {
	Status          domain.AutoTopupStatus `json:"status"`
	TriggerBalance  int                    `json:"trigger_balance"`
	PackageType     string                 `json:"package_type"`
	PaymentMethodID string                 `json:"payment_method_id"`
}

func (h *CreditsHandler) ConfigureAutoTopup(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req autoTopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	policy, err := h.topupService.Configure(r.Context(), &domain.AutoTopupPolicy{
		AccountID:       accountID,
		Status:          req.Status,
		TriggerBalance:  req.TriggerBalance,
		PackageType:     req.PackageType,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "auto-topup configured", policy)
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

func (h *CreditsHandler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req paymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	policy, err := h.topupService.UpdatePaymentMethod(r.Context(), accountID, req.PaymentMethodID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, "payment method updated", policy)
}
