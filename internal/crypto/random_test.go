package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err, "token must be url-safe base64")
	assert.Len(t, raw, TokenBytes)
	assert.NotContains(t, token, "=")
}

func TestHashSecret(t *testing.T) {
	secret := "client-secret"

	hashed, err := HashSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(secret), hashed)

	assert.NoError(t, bcrypt.CompareHashAndPassword(hashed, []byte(secret)))
	assert.True(t, CompareSecret(hashed, secret))
	assert.False(t, CompareSecret(hashed, "client-secret "))
	assert.False(t, CompareSecret(hashed, ""))

	// Same secret produces different hashes due to salt
	hashed2, err := HashSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, hashed, hashed2)
}

func TestSignData(t *testing.T) {
	key := []byte("k")
	sig := SignData("payload", key)

	assert.True(t, ValidateSignedData("payload", sig, key))
	assert.False(t, ValidateSignedData("payload2", sig, key))
	assert.False(t, ValidateSignedData("payload", sig, []byte("other")))
}
