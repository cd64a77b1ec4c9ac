package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rsd-darshan/merokitab/config"
	"github.com/rsd-darshan/merokitab/models"
)

func testSessionConfig(secret string) *config.Config {
	return &config.Config{JWTSecret: secret}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	cfg := testSessionConfig("test-secret")
	user := &models.User{
		ID:      "user-123",
		Name:    "Sita Sharma",
		Email:   "sita@example.com",
		IsAdmin: true,
	}

	token, err := CreateSessionToken(cfg, user)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ParseSessionToken(cfg, token)
	assert.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "sita@example.com", claims.Email)
	assert.Equal(t, "Sita Sharma", claims.Name)
	assert.True(t, claims.IsAdmin)

	remaining := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, remaining, SessionDuration-time.Minute)
	assert.LessOrEqual(t, remaining, SessionDuration)
}

func TestParseSessionTokenWrongSecret(t *testing.T) {
	token, err := CreateSessionToken(testSessionConfig("secret-a"), &models.User{ID: "user-1"})
	assert.NoError(t, err)

	claims, err := ParseSessionToken(testSessionConfig("secret-b"), token)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestParseSessionTokenGarbage(t *testing.T) {
	cfg := testSessionConfig("test-secret")

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		claims, err := ParseSessionToken(cfg, token)
		assert.Error(t, err, "token %q should be rejected", token)
		assert.Nil(t, claims)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	assert.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)

	assert.True(t, VerifyPassword("correct-horse", hash))
	assert.False(t, VerifyPassword("wrong-password", hash))
	assert.False(t, VerifyPassword("correct-horse", "not-a-hash"))
}
