package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

// AuthService issues tokens for registration and login.
type AuthService interface {
	Register(ctx context.Context, login, password string, role domain.AccountRole) (string, error)
	Login(ctx context.Context, login, password string) (string, error)
}

type AuthHandler struct {
	authService AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

type registerRequest struct {
	Login    string             `json:"login"`
	Password string             `json:"password"`
	Role     domain.AccountRole `json:"role"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	token, err := h.authService.Register(r.Context(), req.Login, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			writeResult(w, h.logger, http.StatusConflict,
				domain.Fail(domain.CodeValidation, "login already taken"))
			return
		}
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	writeOK(w, h.logger, http.StatusOK, "registered", map[string]string{"token": token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, h.logger, "invalid request body")
		return
	}

	token, err := h.authService.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeResult(w, h.logger, http.StatusUnauthorized,
				domain.Fail(domain.CodeUnauthorized, "invalid credentials"))
			return
		}
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	writeOK(w, h.logger, http.StatusOK, "logged in", map[string]string{"token": token})
}
