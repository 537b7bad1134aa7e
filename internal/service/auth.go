package service

import (
	"fmt"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// authenticatedRole is the role Supabase Auth puts on user sessions.
const authenticatedRole = "authenticated"

// SupabaseClaims are the claims of a Supabase Auth access token.
type SupabaseClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates access tokens issued by Supabase Auth and
// resolves the owner id of the session.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(jwtSecret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(jwtSecret)}
}

// Verify parses and validates tokenString and returns the owner id.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	if len(v.secret) == 0 {
		return "", &domain.ErrNotAuthenticated{Reason: "token verification not configured"}
	}

	token, err := jwt.ParseWithClaims(tokenString, &SupabaseClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", &domain.ErrNotAuthenticated{Reason: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*SupabaseClaims)
	if !ok || !token.Valid {
		return "", &domain.ErrNotAuthenticated{Reason: "invalid token"}
	}
	if claims.Role != authenticatedRole {
		return "", &domain.ErrNotAuthenticated{Reason: "invalid token role"}
	}
	if claims.Subject == "" {
		return "", &domain.ErrNotAuthenticated{Reason: "token has no subject"}
	}

	return claims.Subject, nil
}
