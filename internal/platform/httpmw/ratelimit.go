// Package httpmw holds HTTP middleware shared by both services on top of
// chi's own request-id/logging/recoverer stack.
package httpmw

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerUserLimiter rate-limits by the user_id a handler extracts from the
// request, falling back to remote address for requests with no user_id.
// Inactive entries are swept periodically so long-running processes don't
// accumulate one limiter per caller forever.
type PerUserLimiter struct {
	mu              sync.Mutex
	limiters        map[string]*trackedLimiter
	rate            rate.Limit
	burst           int
	cleanupInterval time.Duration
}

type trackedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewPerUserLimiter(r rate.Limit, burst int) *PerUserLimiter {
	l := &PerUserLimiter{
		limiters:        make(map[string]*trackedLimiter),
		rate:            r,
		burst:           burst,
		cleanupInterval: 10 * time.Minute,
	}
	go l.sweep()
	return l
}

func (l *PerUserLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.limiters[key]
	if !ok {
		t = &trackedLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = t
	}
	t.lastSeen = time.Now()
	return t.limiter.Allow()
}

func (l *PerUserLimiter) sweep() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		for key, t := range l.limiters {
			if time.Since(t.lastSeen) > l.cleanupInterval {
				delete(l.limiters, key)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware wraps next, rejecting with 429 when keyFn's identity has
// exhausted its budget. keyFn typically reads a path param or falls back
// to RemoteAddr.
func (l *PerUserLimiter) Middleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				key = r.RemoteAddr
			}
			if !l.Allow(key) {
				w.Header().Set("Retry-After", "60")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"RATE_LIMITED","message":"Too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
