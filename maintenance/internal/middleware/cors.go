package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Authorization, Content-Type, X-Request-ID"
)

// CORSMiddleware lets the campus portal call the API from the browser.
// Tokens travel in the Authorization header, so credentials are never allowed.
type CORSMiddleware struct {
	Origins []string // empty allows any origin
	MaxAge  time.Duration
}

func (m CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if allowed := m.match(origin); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
			if m.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(m.MaxAge.Seconds())))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m CORSMiddleware) match(origin string) string {
	if origin == "" {
		return ""
	}
	if len(m.Origins) == 0 {
		return "*"
	}
	for _, allowed := range m.Origins {
		switch {
		case allowed == "*":
			return "*"
		case strings.EqualFold(strings.TrimSpace(allowed), origin):
			return origin
		}
	}
	return ""
}
