// internal/common/utils/jwt_test.go

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	claims := &JWTClaims{
		UserID:     42,
		Email:      "alice@example.com",
		Name:       "Alice",
		Role:       "alumni",
		IsVerified: true,
	}

	token, err := GenerateJWT(claims, "test-secret", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := ValidateJWT(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), parsed.UserID)
	assert.Equal(t, "alice@example.com", parsed.Email)
	assert.Equal(t, "alumni", parsed.Role)
	assert.True(t, parsed.IsVerified)
}

func TestValidateJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT(&JWTClaims{UserID: 1}, "right-secret", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "wrong-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateJWTExpired(t *testing.T) {
	token, err := GenerateJWT(&JWTClaims{UserID: 1}, "test-secret", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "test-secret")
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateJWTGarbage(t *testing.T) {
	_, err := ValidateJWT("not-a-token", "test-secret")
	assert.Error(t, err)
}
