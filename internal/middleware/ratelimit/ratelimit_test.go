package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, limit int) (*Limiter, *fakeClock) {
	t.Helper()
	rl := NewLimiter(Config{Limit: limit, Window: time.Minute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	clock := &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	rl.SetClock(clock.now)
	return rl, clock
}

func TestLimiter_Allow(t *testing.T) {
	rl, clock := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("4th request allowed, want rejected")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other client rejected")
	}

	if got := rl.RetryAfter("1.2.3.4"); got != 60 {
		t.Errorf("RetryAfter = %d, want 60", got)
	}

	clock.advance(time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Error("request after window rejected")
	}

	if got := rl.GetMetrics().TotalHits; got != 1 {
		t.Errorf("TotalHits = %d, want 1", got)
	}
}

func TestLimiter_CleanupStale(t *testing.T) {
	rl, clock := newTestLimiter(t, 10)

	rl.Allow("old")
	clock.advance(90 * time.Second)
	rl.Allow("fresh")
	clock.advance(45 * time.Second)

	if removed := rl.CleanupStale(); removed != 1 {
		t.Errorf("CleanupStale() = %d, want 1", removed)
	}
	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("ActiveClients() = %d, want 1", got)
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	handler := rl.Middleware(
		func(*http.Request) string { return "client" },
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}

func TestNewLimiter_Defaults(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()

	if rl.limit != 60 || rl.window != time.Minute {
		t.Errorf("defaults = %d/%v, want 60/1m", rl.limit, rl.window)
	}
	rl.Stop()
}
