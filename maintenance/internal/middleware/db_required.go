package middleware

import (
	"net/http"

	"smart-campus-maintenance/shared/httpx"
)

// DBRequiredMiddleware answers 503 while the database pool is missing.
type DBRequiredMiddleware struct {
	Ready func() bool
	Skip  func(*http.Request) bool
}

func (m DBRequiredMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		if m.Ready == nil || !m.Ready() {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "database not configured", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
