// Pivota | 2026
// auth.go

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pivota/accounts-api/internal/core"
)

const (
	AuthContextKey contextKey = "auth_context"
)

// AuthContext is the per-request authorization result handed to protected
// handlers: who is calling and with which roles.
type AuthContext struct {
	UserID string
	Email  string
	Plan   string
	Roles  []string
}

func (c *AuthContext) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorizer validates a bearer token and cross-checks the subject against
// the store, implemented by auth.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*AuthContext, error)
}

func Authenticator(guard Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)

			if token == "" {
				core.JSONError(
					w,
					core.UnauthorizedError("missing authorization token"),
				)
				return
			}

			authCtx, err := guard.Authorize(r.Context(), token)
			if err != nil {
				handleAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrTokenExpired):
		core.JSONError(w, core.TokenExpiredError())
	case errors.Is(err, core.ErrStoreUnavailable):
		core.JSONError(w, core.StoreUnavailableError())
	default:
		// Bad signature, malformed structure, and vanished subjects all
		// collapse to one unauthorized outcome at the boundary.
		core.JSONError(w, core.TokenInvalidError())
	}
}

func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

func GetUserID(ctx context.Context) string {
	if authCtx := GetAuthContext(ctx); authCtx != nil {
		return authCtx.UserID
	}
	return ""
}

func GetPlan(ctx context.Context) string {
	if authCtx := GetAuthContext(ctx); authCtx != nil {
		return authCtx.Plan
	}
	return ""
}
