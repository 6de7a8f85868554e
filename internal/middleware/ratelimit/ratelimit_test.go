package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, rpm int) (*Limiter, func(time.Duration)) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: rpm})
	t.Cleanup(rl.Stop)

	var mu sync.Mutex
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return rl, advance
}

func TestLimiterAllow(t *testing.T) {
	rl, advance := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("request %d denied", i+1)
		}
	}
	if rl.Allow("u1") {
		t.Fatal("fourth request allowed")
	}
	if !rl.Allow("u2") {
		t.Fatal("other key limited")
	}

	// Steady traffic must not keep extending the window.
	advance(30 * time.Second)
	if rl.Allow("u1") {
		t.Fatal("allowed inside the window")
	}
	advance(31 * time.Second)
	if !rl.Allow("u1") {
		t.Fatal("new window not opened")
	}

	if got := rl.GetMetrics().TotalHits; got != 2 {
		t.Fatalf("hits = %d, want 2", got)
	}
}

func TestLimiterCleanup(t *testing.T) {
	rl, advance := newTestLimiter(t, 5)
	rl.Allow("a")
	rl.Allow("b")
	advance(11 * time.Minute)
	rl.Allow("b")
	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 1 {
		t.Fatalf("clients = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiterMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(r *http.Request) string { return r.Header.Get("X-Key") }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Key", "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(); rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "61" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}
