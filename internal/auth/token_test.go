package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	config := JWTConfig{Secret: "test-secret", ExpiryHours: 1}

	token, err := GenerateToken(config, "manager")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, "manager", claims.Username)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	config := JWTConfig{Secret: "test-secret", ExpiryHours: 1}

	token, err := GenerateToken(config, "manager")
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := ValidateToken("secret", "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
