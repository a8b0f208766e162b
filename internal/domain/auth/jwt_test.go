package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	user := &User{
		Username: "alice",
		FullName: "Alice Smith",
		Roles:    []string{"analyst"},
		IsAdmin:  true,
	}

	token, expiresAt, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	uc, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", uc.Username)
	assert.Equal(t, "Alice Smith", uc.FullName)
	assert.Equal(t, []string{"analyst"}, uc.Roles)
	assert.True(t, uc.IsAdmin)
}

func TestJWTWrongSecretRejected(t *testing.T) {
	token, _, err := NewJWTService(DefaultJWTConfig("secret-a")).
		GenerateAccessToken(&User{Username: "alice"})
	require.NoError(t, err)

	_, err = NewJWTService(DefaultJWTConfig("secret-b")).ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTExpiredRejected(t *testing.T) {
	cfg := DefaultJWTConfig("test-secret")
	cfg.AccessTokenTTL = -time.Minute

	token, _, err := NewJWTService(cfg).GenerateAccessToken(&User{Username: "alice"})
	require.NoError(t, err)

	_, err = NewJWTService(cfg).ValidateToken(token)
	assert.Error(t, err)
}
