// Package auth issues and validates the access tokens carried by search
// requests, and derives the per-request query encryption key from the raw
// token.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/cryptox"
)

// Claims carries the standard registered claims plus the user identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

// queryKeySalt is the fixed application salt for deriving the query
// encryption key from an access token. Not secret; the token is.
var queryKeySalt = []byte("emr-search-query-key")

// GenerateToken signs an HS256 access token for userID.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	return token.SignedString(secretKey)
}

// GetUserIDFromToken validates the token signature and expiry and returns
// the embedded user id.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}

// QueryKeyFromToken derives the symmetric key a caller uses to encrypt its
// search query. Both sides derive the same key from the raw token string, so
// no key material crosses the wire.
func QueryKeyFromToken(tokenString string, iterations int) []byte {
	return cryptox.DeriveKey([]byte(tokenString), queryKeySalt, iterations, cryptox.KeySize)
}
