package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownExpiresOnce(t *testing.T) {
	c := NewCountdown(30*time.Millisecond, 10*time.Millisecond)

	var mu sync.Mutex
	var ticks []time.Duration
	c.OnTick(func(remaining time.Duration) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	})

	var fired atomic.Int32
	done := make(chan struct{}, 1)
	c.OnExpire(func() {
		fired.Add(1)
		done <- struct{}{}
	})

	c.Start()
	c.Start()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected expiry callback to fire")
	}

	time.Sleep(40 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("expected exactly 1 expiry, got %d", fired.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{20 * time.Millisecond, 10 * time.Millisecond, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}
	if !c.Expired() || c.Remaining() != 0 {
		t.Fatal("expected expired countdown at zero")
	}
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	c := NewCountdown(50*time.Millisecond, 10*time.Millisecond)

	var fired atomic.Int32
	c.OnExpire(func() { fired.Add(1) })

	c.Start()
	time.Sleep(15 * time.Millisecond)
	c.Stop()
	c.Stop()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected no expiry after stop, got %d", fired.Load())
	}
	if c.Remaining() == 0 {
		t.Fatal("remaining time should freeze when stopped")
	}
}

func TestCountdownStopBeforeStart(t *testing.T) {
	c := NewCountdown(10*time.Millisecond, 5*time.Millisecond)
	var fired atomic.Int32
	c.OnExpire(func() { fired.Add(1) })

	c.Stop()
	c.Start()
	time.Sleep(40 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("a stopped countdown must not start")
	}
}
