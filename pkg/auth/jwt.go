package auth

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalid = errors.New("invalid token")

// TokenTTL is how long an operator session lives before re-login.
const TokenTTL = 24 * time.Hour

// Claims identifies an operator session on the management API.
type Claims struct {
	OperatorID uint   `json:"oid"`
	Name       string `json:"name"`
	jwt.RegisteredClaims
}

var warnOnce sync.Once

// SecretConfigured reports whether an operator-provided signing secret is set.
// Callers accepting JWTs for authentication must refuse tokens signed with the
// built-in development fallback.
func SecretConfigured() bool {
	return os.Getenv("JWT_SECRET") != ""
}

func secret() []byte {
	s := os.Getenv("JWT_SECRET")
	if s == "" {
		warnOnce.Do(func() {
			log.Printf("JWT_SECRET not set, using built-in development secret")
		})
		s = "vortexl2-dev-secret"
	}
	return []byte(s)
}

// Generate signs a session token for an operator.
func Generate(operatorID uint, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		OperatorID: operatorID,
		Name:       name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vortexl2",
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// Parse validates a session token and returns its claims.
func Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalid
	}
	if claims, ok := token.Claims.(*Claims); ok {
		return claims, nil
	}
	return nil, ErrInvalid
}
