package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"smart-campus-maintenance/shared/authx"
	"smart-campus-maintenance/shared/httpx"
)

// AttemptLimiter is a per-caller token bucket. It guards the OTP check,
// where a four digit code would otherwise be guessable.
type AttemptLimiter struct {
	mu      sync.Mutex
	rate    float64
	burst   float64
	ttl     time.Duration
	now     func() time.Time
	callers map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewAttemptLimiter allows burst attempts, refilled at perMinute.
func NewAttemptLimiter(perMinute float64, burst int, ttl time.Duration) *AttemptLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	if burst <= 0 {
		burst = 5
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &AttemptLimiter{
		rate:    perMinute / 60,
		burst:   float64(burst),
		ttl:     ttl,
		now:     time.Now,
		callers: make(map[string]*bucket),
	}
}

func (l *AttemptLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.callers {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.callers, k)
		}
	}

	b, ok := l.callers[key]
	if !ok {
		l.callers[key] = &bucket{tokens: l.burst - 1, lastSeen: now}
		return true
	}
	b.tokens += now.Sub(b.lastSeen).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastSeen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limit wraps a single handler. Authenticated callers are keyed by subject,
// anonymous ones by client address.
func (l *AttemptLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l != nil && !l.Allow(callerKey(r)) {
			httpx.WriteError(w, r, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "too many attempts, try again later", nil)
			return
		}
		next(w, r)
	}
}

func callerKey(r *http.Request) string {
	if auth, ok := authx.FromContext(r.Context()); ok && auth.Subject != "" {
		return "sub:" + auth.Subject
	}
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		return "ip:" + strings.TrimSpace(strings.Split(v, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return "ip:" + host
	}
	return "ip:" + strings.TrimSpace(r.RemoteAddr)
}
