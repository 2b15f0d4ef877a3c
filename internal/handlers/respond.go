package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// writeResult writes the uniform response envelope.
func writeResult(w http.ResponseWriter, logger *zap.Logger, status int, result domain.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeOK writes a success envelope.
func writeOK(w http.ResponseWriter, logger *zap.Logger, status int, message string, data any) {
	writeResult(w, logger, status, domain.OK(message, data))
}

// writeValidation writes a 400 with the validation code.
func writeValidation(w http.ResponseWriter, logger *zap.Logger, message string) {
	writeResult(w, logger, http.StatusBadRequest, domain.Fail(domain.CodeValidation, message))
}

// writeError maps a workflow error onto a status and a machine-readable
// code. Unknown errors are logged and masked as 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	type mapping struct {
		status int
		code   string
	}

	known := []struct {
		err error
		mapping
	}{
		{domain.ErrInsufficientBalance, mapping{http.StatusPaymentRequired, domain.CodeInsufficientBalance}},
		{domain.ErrPaymentFailed, mapping{http.StatusPaymentRequired, domain.CodePaymentFailed}},
		{domain.ErrUsageLimitExceeded, mapping{http.StatusTooManyRequests, domain.CodeUsageLimitExceeded}},
		{domain.ErrInvalidStatusTransition, mapping{http.StatusConflict, domain.CodeInvalidTransition}},
		{domain.ErrJobNotAvailable, mapping{http.StatusConflict, domain.CodeJobNotAvailable}},
		{domain.ErrJobExpired, mapping{http.StatusGone, domain.CodeJobExpired}},
		{domain.ErrDuplicateApplication, mapping{http.StatusConflict, domain.CodeDuplicateApp}},
		{domain.ErrUnauthorized, mapping{http.StatusForbidden, domain.CodeUnauthorized}},
		{domain.ErrNotFound, mapping{http.StatusNotFound, domain.CodeNotFound}},
		{domain.ErrInvalidInput, mapping{http.StatusBadRequest, domain.CodeValidation}},
		{domain.ErrUnknownUsageType, mapping{http.StatusBadRequest, domain.CodeValidation}},
		{domain.ErrUnknownPackage, mapping{http.StatusBadRequest, domain.CodeValidation}},
		{domain.ErrAutoTopupSuspended, mapping{http.StatusConflict, domain.CodeValidation}},
	}

	for _, m := range known {
		if errors.Is(err, m.err) {
			writeResult(w, logger, m.status, domain.Fail(m.code, m.err.Error()))
			return
		}
	}

	logger.Error("request failed", zap.Error(err))
	writeResult(w, logger, http.StatusInternalServerError,
		domain.Fail(domain.CodeSystemError, "internal server error"))
}
