package throttle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacer_Allow(t *testing.T) {
	p := New(3, 3)

	for i := 0; i < 3; i++ {
		if !p.Allow() {
			t.Errorf("call %d should be allowed", i+1)
		}
	}

	if p.Allow() {
		t.Error("4th call within the window should be refused")
	}

	stats := p.Stats()
	if stats.InWindow != 3 || stats.LimitPerMinute != 3 || stats.WindowSeconds != 60 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Waits != 1 {
		t.Errorf("Waits = %d, expected 1", stats.Waits)
	}
}

func TestPacer_SlidingWindow(t *testing.T) {
	p := New(2, 2)

	current := time.Now()
	p.now = func() time.Time { return current }

	if !p.Allow() || !p.Allow() {
		t.Fatal("first two calls should be allowed")
	}
	if p.Allow() {
		t.Fatal("third call should be refused")
	}

	current = current.Add(61 * time.Second)

	if !p.Allow() {
		t.Error("call should be allowed once the window slid past")
	}
}

func TestPacer_WaitBlocksUntilSlotFrees(t *testing.T) {
	p := New(1, 1)
	p.window = 50 * time.Millisecond

	ctx := context.Background()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	// The token bucket refills far slower than the shortened window, so let it through.
	p.limiter.SetLimit(1000)
	p.limiter.SetBurst(10)

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second Wait() returned after %v, expected to wait for the window", elapsed)
	}
}

func TestPacer_WaitHonoursContext(t *testing.T) {
	p := New(1, 1)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); err == nil {
		t.Error("expected Wait to give up when the context expires")
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	p.limiter.SetLimit(1000)
	if err := p.Wait(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() on a cancelled context = %v, expected context.Canceled", err)
	}
}

func TestPacer_Disabled(t *testing.T) {
	p := New(0, 0)
	if p != nil {
		t.Fatal("a zero limit should disable pacing")
	}

	for i := 0; i < 100; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("disabled pacer Wait() error = %v", err)
		}
	}
	if !p.Allow() {
		t.Error("disabled pacer should allow everything")
	}
	if (p.Stats() != Stats{}) {
		t.Error("disabled pacer has no stats")
	}
}
