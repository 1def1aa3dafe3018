package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Limiter Tests
// =============================================================================

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name      string
		rps       float64
		hostRPS   float64
		burst     int
		wantBurst int
	}{
		{"limited", 10, 2, 5, 5},
		{"unlimited", 0, 0, 1, 1},
		{"burst clamped", 10, 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.rps, tt.hostRPS, tt.burst)
			if l == nil {
				t.Fatal("NewLimiter() returned nil")
			}
			if l.perHost == nil {
				t.Error("perHost map is nil")
			}
			if l.Stats().Burst != tt.wantBurst {
				t.Errorf("Burst = %d, want %d", l.Stats().Burst, tt.wantBurst)
			}
		})
	}
}

func TestLimiter_WaitURL_Global(t *testing.T) {
	l := NewLimiter(100, 0, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		// Distinct hosts still share the global bucket.
		if err := l.WaitURL(ctx, fmt.Sprintf("https://h%d.example.com/", i)); err != nil {
			t.Fatalf("WaitURL() error = %v", err)
		}
	}
	// Two waits after the burst at 100/s.
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("WaitURL() returned too fast: %v", elapsed)
	}
}

func TestLimiter_WaitURL_Cancelled(t *testing.T) {
	l := NewLimiter(0.1, 0, 1)
	if err := l.WaitURL(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("first WaitURL() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.WaitURL(ctx, "https://example.com/"); err == nil {
		t.Error("WaitURL() should fail with cancelled context")
	}
}

func TestLimiter_Stats(t *testing.T) {
	l := NewLimiter(50, 5, 4)

	stats := l.Stats()
	if stats.Rate != 50 {
		t.Errorf("Rate = %v, want 50", stats.Rate)
	}
	if stats.HostRate != 5 {
		t.Errorf("HostRate = %v, want 5", stats.HostRate)
	}
	if stats.Burst != 4 {
		t.Errorf("Burst = %d, want 4", stats.Burst)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := Unlimited()
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := l.WaitURL(ctx, "https://example.com/page"); err != nil {
			t.Fatalf("WaitURL() error = %v", err)
		}
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("unlimited limiter took %v", time.Since(start))
	}
	stats := l.Stats()
	if stats.HostCount != 0 {
		t.Errorf("HostCount = %d, want 0 when host limiting is off", stats.HostCount)
	}
	if stats.Rate != 0 || stats.HostRate != 0 {
		t.Errorf("unlimited rates = %v/%v, want 0/0", stats.Rate, stats.HostRate)
	}
}

func TestLimiter_WaitURL_PerHost(t *testing.T) {
	l := NewLimiter(0, 0.5, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := l.WaitURL(ctx, "https://a.example.com/1"); err != nil {
		t.Fatalf("first WaitURL() error = %v", err)
	}
	if err := l.WaitURL(ctx, "https://b.example.com/1"); err != nil {
		t.Fatalf("other host WaitURL() error = %v", err)
	}
	// Same host again needs two seconds of budget.
	if err := l.WaitURL(ctx, "https://a.example.com/2"); err == nil {
		t.Error("WaitURL() on throttled host should fail before deadline")
	}

	if got := l.Stats().HostCount; got != 2 {
		t.Errorf("HostCount = %d, want 2", got)
	}
}

func TestLimiter_WaitURL_NoHost(t *testing.T) {
	l := NewLimiter(0, 0.1, 1)
	ctx := context.Background()

	for _, u := range []string{"relative/path", "::bad", "c"} {
		if err := l.WaitURL(ctx, u); err != nil {
			t.Errorf("WaitURL(%q) error = %v", u, err)
		}
	}
	if got := l.Stats().HostCount; got != 0 {
		t.Errorf("HostCount = %d, want 0", got)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(0, 1000, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := l.WaitURL(ctx, "https://shared.example.com/"); err != nil {
					t.Errorf("WaitURL() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := l.Stats().HostCount; got != 1 {
		t.Errorf("HostCount = %d, want 1", got)
	}
}
