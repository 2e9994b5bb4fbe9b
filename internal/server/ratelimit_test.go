package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// okHandler stands in for the routes behind the middleware.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 3, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 3 {
		if w := hit(h, "10.0.0.1:9999"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i, w.Code)
		}
	}

	w := hit(h, "10.0.0.1:9999")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request over burst: got %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60 (capped)", got)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error != "rate limit exceeded" {
		t.Errorf("body = %+v (%v), want JSON rate limit error", body, err)
	}
}

func TestRateLimit_BucketsArePerIP(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	hit(h, "192.168.1.1:1111")
	if w := hit(h, "192.168.1.1:2222"); w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP, new port: got %d, want 429", w.Code)
	}
	if w := hit(h, "192.168.1.2:1111"); w.Code != http.StatusOK {
		t.Errorf("other IP: got %d, want 200", w.Code)
	}
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rps  float64
		want string
	}{
		{10, "1"},
		{1, "1"},
		{0.5, "2"},
		{0.1, "10"},
		{0.001, "60"},
		{0, "60"},
	}
	for _, tc := range cases {
		rl := &rateLimiter{rps: rate.Limit(tc.rps)}
		if got := rl.retryAfter(); got != tc.want {
			t.Errorf("rps=%v: retryAfter() = %q, want %q", tc.rps, got, tc.want)
		}
	}
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, slog.Default())
	defer stop()

	rl.limiterFor("10.0.0.1")
	rl.limiterFor("10.0.0.2")
	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-2 * visitorTTL)
	rl.mu.Unlock()

	rl.evict(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["10.0.0.1"]; ok {
		t.Error("idle visitor was not evicted")
	}
	if _, ok := rl.visitors["10.0.0.2"]; !ok {
		t.Error("active visitor was evicted")
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"[2001:db8::7]:443", "2001:db8::7"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
		}
	}
}
