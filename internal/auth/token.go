package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// StandardClaims represents the claims the backend puts in its session tokens.
type StandardClaims struct {
	Sub    string `json:"sub"`
	UserId string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ParseClaims decodes a token without verifying its signature. The backend
// verifies tokens; the client only inspects expiry and identity.
func ParseClaims(tokenString string) (*StandardClaims, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &StandardClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*StandardClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CheckExpiry reports ErrExpiredToken when the token carries an exp claim in
// the past. Opaque (non-JWT) tokens and tokens without exp are accepted.
func CheckExpiry(tokenString string, now time.Time) error {
	if strings.Count(tokenString, ".") != 2 {
		return nil
	}

	claims, err := ParseClaims(tokenString)
	if err != nil {
		return err
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return ErrExpiredToken
	}
	return nil
}

// SubjectOf returns the best identity found in the token: user_id, then sub, then email.
func SubjectOf(tokenString string) string {
	claims, err := ParseClaims(tokenString)
	if err != nil {
		return ""
	}
	switch {
	case claims.UserId != "":
		return claims.UserId
	case claims.Sub != "":
		return claims.Sub
	default:
		return claims.Email
	}
}
