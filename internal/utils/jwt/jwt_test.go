package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradielink/backend/internal/domain"
)

func TestManager_GenerateAndValidate(t *testing.T) {
	manager := NewManager("test-secret", time.Hour)

	token, err := manager.Generate(42, domain.RoleTradie)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	accountID, role, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), accountID)
	assert.Equal(t, domain.RoleTradie, role)
}

func TestManager_ValidateExpired(t *testing.T) {
	manager := NewManager("test-secret", -time.Hour)

	token, err := manager.Generate(42, domain.RoleClient)
	require.NoError(t, err)

	_, _, err = manager.Validate(token)
	assert.Error(t, err)
}

func TestManager_ValidateWrongSecret(t *testing.T) {
	manager := NewManager("test-secret", time.Hour)
	other := NewManager("other-secret", time.Hour)

	token, err := manager.Generate(42, domain.RoleClient)
	require.NoError(t, err)

	_, _, err = other.Validate(token)
	assert.Error(t, err)
}

func TestManager_ValidateGarbage(t *testing.T) {
	manager := NewManager("test-secret", time.Hour)

	_, _, err := manager.Validate("not-a-token")
	assert.Error(t, err)
}
