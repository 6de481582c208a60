package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/comanda/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	staffID := uuid.New()

	token, err := GenerateToken("test-secret", staffID, models.RoleWaiter, time.Hour)
	require.NoError(t, err)

	id, role, err := ParseToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, staffID, id)
	assert.Equal(t, models.RoleWaiter, role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("test-secret", uuid.New(), models.RoleCashier, time.Hour)
	require.NoError(t, err)

	_, _, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("test-secret", uuid.New(), models.RoleAdmin, -time.Minute)
	require.NoError(t, err)

	_, _, err = ParseToken("test-secret", token)
	assert.Error(t, err)
}
