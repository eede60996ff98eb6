// Package auth issues and verifies the HS256 bearer tokens that guard the
// admin API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// AdminRole is the only role the admin API accepts.
const AdminRole = "admin"

// Claims carries the standard claims plus the operator's role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// GenerateToken signs an admin token for subject valid for ttl.
func GenerateToken(subject string, secretKey []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: AdminRole,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ParseToken verifies tokenString and returns its subject. Only HS256 is
// accepted and the role must be AdminRole.
func ParseToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Role != AdminRole {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
