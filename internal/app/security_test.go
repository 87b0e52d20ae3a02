package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiterAllow(t *testing.T) {
	l := NewIPRateLimiter(2, 0)
	if !l.Allow("k") || !l.Allow("k") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow("k") {
		t.Fatalf("third request should be blocked")
	}
	if !l.Allow("other") {
		t.Fatalf("other keys keep their own budget")
	}
}

func TestIPRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2024, 9, 9, 10, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("k") || l.Allow("k") {
		t.Fatalf("expected one request per window")
	}
	now = now.Add(61 * time.Second)
	if !l.Allow("k") {
		t.Fatalf("expected budget to reset after the window")
	}
}

func TestRateLimitMiddlewareSkipsReads(t *testing.T) {
	mw := RateLimitMiddleware(NewIPRateLimiter(1, time.Minute))
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/x/review", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		next.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %d: expected 200, got %d", i, w.Code)
		}
	}

	codes := make([]int, 0, 2)
	for _, port := range []string{"5001", "5002"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/links/1/save", nil)
		req.RemoteAddr = "10.0.0.1:" + port
		w := httptest.NewRecorder()
		next.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected second POST from same host to be throttled, got %v", codes)
	}
}

func TestCSRFMiddlewareEnforced(t *testing.T) {
	mw := CSRFMiddleware(true)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/links/1/save", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	req.Header.Set(csrfHeaderName, "abc")
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCSRFMiddlewareRejectsMissingToken(t *testing.T) {
	mw := CSRFMiddleware(true)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers/x/bulk-complete", nil)
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestCSRFMiddlewareDisabled(t *testing.T) {
	mw := CSRFMiddleware(false)
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/links/1/save", nil)
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
}

func TestAuthFailureMiddlewareBlocksAfterRepeated401(t *testing.T) {
	l := NewIPRateLimiter(2, time.Minute)
	calls := 0
	h := AuthFailureMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", w.Code)
	}
	if calls != 2 {
		t.Fatalf("blocked request must not reach authentication, calls=%d", calls)
	}
}

func TestAuthFailureMiddlewareIgnoresSuccess(t *testing.T) {
	l := NewIPRateLimiter(1, time.Minute)
	h := AuthFailureMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, w.Code)
		}
	}
}

func TestIPRateLimiterExhaustedDoesNotConsume(t *testing.T) {
	l := NewIPRateLimiter(1, time.Minute)
	if l.Exhausted("k") {
		t.Fatalf("fresh key must not be exhausted")
	}
	if !l.Allow("k") {
		t.Fatalf("first request should pass")
	}
	if !l.Exhausted("k") {
		t.Fatalf("expected key exhausted after its budget")
	}
}
