// Package auth implements the authenticator capability: bcrypt password
// hashing and HS256 access tokens carrying the username as subject.
package auth

import (
	"time"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the registered JWT claims; the username travels in Subject.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for the given username, valid for
// validityDuration from now.
func GenerateToken(username string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUsernameFromToken verifies the token signature and expiry and returns
// the subject. Any parse or validation failure maps to ErrInvalidToken.
func GetUsernameFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
