package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fleetmgr/maintenance/internal/identity"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const userContextKey contextKey = "user"

// Claims are the token claims the platform's identity provider issues.
type Claims struct {
	AccountID string `json:"accountId"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens and resolves the calling user.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator for HMAC-signed tokens.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware validates the Authorization header and stores the resolved
// user on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		user, err := a.userFromToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, *user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) userFromToken(raw string) (*identity.User, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}

	user := identity.User{
		AccountID: claims.AccountID,
		UserID:    claims.Subject,
		Role:      role,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return &user, nil
}

// UserFromContext extracts the authenticated user from a request context.
func UserFromContext(ctx context.Context) (identity.User, bool) {
	user, ok := ctx.Value(userContextKey).(identity.User)
	return user, ok
}
