package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztmed/emrsearch/internal/cryptox"
)

var testSecret = []byte("test-secret-key")

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("user-1", testSecret, time.Minute)
	require.NoError(t, err)

	userID, err := GetUserIDFromToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestGetUserIDFromToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("user-1", testSecret, time.Minute)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(token, []byte("another-secret"))
	assert.Error(t, err)
}

func TestGetUserIDFromToken_Expired(t *testing.T) {
	token, err := GenerateToken("user-1", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(token, testSecret)
	assert.Error(t, err)
}

func TestGetUserIDFromToken_Garbage(t *testing.T) {
	_, err := GetUserIDFromToken("not.a.token", testSecret)
	assert.Error(t, err)
}

func TestQueryKeyFromToken(t *testing.T) {
	token1, err := GenerateToken("user-1", testSecret, time.Minute)
	require.NoError(t, err)
	token2, err := GenerateToken("user-2", testSecret, time.Minute)
	require.NoError(t, err)

	key1 := QueryKeyFromToken(token1, cryptox.MinPBKDF2Iterations)
	key2 := QueryKeyFromToken(token2, cryptox.MinPBKDF2Iterations)

	assert.Len(t, key1, cryptox.KeySize)
	assert.Equal(t, key1, QueryKeyFromToken(token1, cryptox.MinPBKDF2Iterations), "derivation is deterministic")
	assert.NotEqual(t, key1, key2, "different tokens derive different keys")
}
