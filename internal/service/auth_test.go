package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradielink/backend/internal/domain"
	"github.com/tradielink/backend/internal/utils/jwt"
	"github.com/tradielink/backend/internal/utils/password"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService() (*AuthService, *fakeAccountRepo, *jwt.Manager) {
	accountRepo := newFakeAccountRepo()
	manager := jwt.NewManager("test-secret", time.Hour)
	svc := NewAuthService(accountRepo, password.NewBCryptHasher(bcrypt.MinCost), manager, 6)
	return svc, accountRepo, manager
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("Success issues a token with the role", func(t *testing.T) {
		svc, _, manager := newAuthService()

		token, err := svc.Register(ctx, "sparky", "s3cret1", domain.RoleTradie)
		require.NoError(t, err)

		accountID, role, err := manager.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, int64(1), accountID)
		assert.Equal(t, domain.RoleTradie, role)
	})

	t.Run("Duplicate login", func(t *testing.T) {
		svc, _, _ := newAuthService()

		_, err := svc.Register(ctx, "sparky", "s3cret1", domain.RoleTradie)
		require.NoError(t, err)

		_, err = svc.Register(ctx, "sparky", "other-pass", domain.RoleClient)
		assert.ErrorIs(t, err, domain.ErrAccountExists)
	})

	t.Run("Short password", func(t *testing.T) {
		svc, _, _ := newAuthService()

		_, err := svc.Register(ctx, "sparky", "abc", domain.RoleTradie)
		assert.Error(t, err)
	})

	t.Run("Unknown role", func(t *testing.T) {
		svc, _, _ := newAuthService()

		_, err := svc.Register(ctx, "sparky", "s3cret1", "admin")
		assert.Error(t, err)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc, _, manager := newAuthService()
		_, err := svc.Register(ctx, "sparky", "s3cret1", domain.RoleClient)
		require.NoError(t, err)

		token, err := svc.Login(ctx, "sparky", "s3cret1")
		require.NoError(t, err)

		_, role, err := manager.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleClient, role)
	})

	t.Run("Wrong password", func(t *testing.T) {
		svc, _, _ := newAuthService()
		_, err := svc.Register(ctx, "sparky", "s3cret1", domain.RoleClient)
		require.NoError(t, err)

		_, err = svc.Login(ctx, "sparky", "wrong-pass")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("Unknown login", func(t *testing.T) {
		svc, _, _ := newAuthService()

		_, err := svc.Login(ctx, "nobody", "s3cret1")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})
}
