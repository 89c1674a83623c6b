package middleware

import (
	"context"
	"net/http"
	"strings"

	"smart-campus-maintenance/shared/authx"
	"smart-campus-maintenance/shared/httpx"
)

// TokenVerifier is satisfied by *authx.JWTVerifier.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (authx.AuthContext, error)
}

type AuthMiddleware struct {
	Verifier TokenVerifier
	Skip     func(*http.Request) bool
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if m.Verifier == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "auth verifier not configured", nil)
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(authHeader[len("bearer "):])
		auth, err := m.Verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token", nil)
			return
		}
		if _, err := auth.UserID(); err != nil {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "token subject is not a campus user", nil)
			return
		}

		ctx := authx.WithAuth(r.Context(), auth)
		ctx = httpx.WithActor(ctx, auth.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers holding none of roles.
func RequireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, ok := authx.FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
			return
		}
		if !auth.HasRole(roles...) {
			httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "role not permitted", map[string]any{"required": roles})
			return
		}
		next(w, r)
	}
}
