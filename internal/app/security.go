package app

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"bilingdash/internal/app/apiresp"

	"github.com/go-chi/chi/v5/middleware"
)

const csrfCookieName = "bilingdash_csrf"
const csrfHeaderName = "X-CSRF-Token"

// pruneEvery bounds how many Allow calls pass between sweeps of expired buckets.
const pruneEvery = 1024

type rateBucket struct {
	Count      int
	WindowEnds time.Time
}

type IPRateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	store  map[string]rateBucket
	calls  int
	now    func() time.Time
}

func NewIPRateLimiter(max int, window time.Duration) *IPRateLimiter {
	if max <= 0 {
		max = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{
		max:    max,
		window: window,
		store:  make(map[string]rateBucket),
		now:    time.Now,
	}
}

func (l *IPRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	l.calls++
	if l.calls%pruneEvery == 0 {
		for k, b := range l.store {
			if now.After(b.WindowEnds) {
				delete(l.store, k)
			}
		}
	}

	b := l.store[key]
	if now.After(b.WindowEnds) {
		b = rateBucket{Count: 0, WindowEnds: now.Add(l.window)}
	}
	if b.Count >= l.max {
		l.store[key] = b
		return false
	}
	b.Count++
	l.store[key] = b
	return true
}

// Exhausted reports whether key has used up its current window without
// consuming from it.
func (l *IPRateLimiter) Exhausted(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.store[key]
	return ok && !l.now().After(b.WindowEnds) && b.Count >= l.max
}

// AuthFailureMiddleware blocks a client IP once it has collected too many 401
// responses inside the limiter window. Mount it ahead of authentication.
func AuthFailureMiddleware(l *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r) + "|auth"
			if l.Exhausted(key) {
				w.Header().Set("Retry-After", "60")
				apiresp.WriteError(w, r, http.StatusTooManyRequests, "too many failed sign-in attempts")
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() == http.StatusUnauthorized {
				l.Allow(key)
			}
		})
	}
}

// RateLimitMiddleware throttles mutating requests per client IP. Reads pass
// through untouched.
func RateLimitMiddleware(l *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(clientIP(r) + "|" + r.Method) {
				w.Header().Set("Retry-After", "60")
				apiresp.WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CSRFMiddleware(enforced bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enforced || isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			c, err := r.Cookie(csrfCookieName)
			if err != nil || strings.TrimSpace(c.Value) == "" {
				apiresp.WriteError(w, r, http.StatusForbidden, "csrf token missing")
				return
			}
			h := strings.TrimSpace(r.Header.Get(csrfHeaderName))
			if h == "" || h != c.Value {
				apiresp.WriteError(w, r, http.StatusForbidden, "csrf token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// clientIP strips the port so every connection from one host shares a bucket.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
