package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/utils/jwt"
	"github.com/tradielink/backend/internal/utils/password"
)

// AuthService registers and authenticates marketplace accounts.
type AuthService struct {
	accountRepo       domain.AccountRepository
	passwordHasher    password.Hasher
	jwtManager        *jwt.Manager
	minPasswordLength int
}

// NewAuthService creates an AuthService.
func NewAuthService(
	accountRepo domain.AccountRepository,
	passwordHasher password.Hasher,
	jwtManager *jwt.Manager,
	minPasswordLength int,
) *AuthService {
	return &AuthService{
		accountRepo:       accountRepo,
		passwordHasher:    passwordHasher,
		jwtManager:        jwtManager,
		minPasswordLength: minPasswordLength,
	}
}

// Register creates a new account with the given role and returns a token.
func (s *AuthService) Register(ctx context.Context, login, accountPassword string, role domain.AccountRole) (string, error) {
	if login == "" || accountPassword == "" {
		return "", fmt.Errorf("auth service: empty login or password: %w", domain.ErrInvalidInput)
	}
	if len(accountPassword) < s.minPasswordLength {
		return "", fmt.Errorf("auth service: password must be at least %d characters: %w", s.minPasswordLength, domain.ErrInvalidInput)
	}
	if role != domain.RoleClient && role != domain.RoleTradie {
		return "", fmt.Errorf("auth service: unknown role %q: %w", role, domain.ErrInvalidInput)
	}

	hash, err := s.passwordHasher.Hash(accountPassword)
	if err != nil {
		return "", fmt.Errorf("auth service: failed to hash password for %q: %w", login, err)
	}

	account, err := s.accountRepo.CreateAccount(ctx, login, hash, role)
	if err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return "", err
		}
		return "", fmt.Errorf("auth service: failed to register %q: %w", login, err)
	}

	token, err := s.jwtManager.Generate(account.ID, account.Role)
	if err != nil {
		return "", fmt.Errorf("auth service: failed to generate token for account %d: %w", account.ID, err)
	}

	return token, nil
}

// Login authenticates an account and returns a token.
func (s *AuthService) Login(ctx context.Context, login, accountPassword string) (string, error) {
	if login == "" || accountPassword == "" {
		return "", fmt.Errorf("auth service: empty login or password: %w", domain.ErrInvalidInput)
	}

	account, err := s.accountRepo.GetAccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrInvalidCredentials
		}
		return "", fmt.Errorf("auth service: failed to get account %q: %w", login, err)
	}

	if err := s.passwordHasher.Check(account.PasswordHash, accountPassword); err != nil {
		return "", domain.ErrInvalidCredentials
	}

	token, err := s.jwtManager.Generate(account.ID, account.Role)
	if err != nil {
		return "", fmt.Errorf("auth service: failed to generate token for account %d: %w", account.ID, err)
	}

	return token, nil
}
