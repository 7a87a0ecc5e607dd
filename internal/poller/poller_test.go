package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	p := &Poller{Interval: time.Second, MaxInterval: 10 * time.Second}
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.failures); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.failures, got, tt.want)
		}
	}
}

func TestBackoffCeilingBelowInterval(t *testing.T) {
	p := &Poller{Interval: 3 * time.Second}
	if got := p.Backoff(5); got != 3*time.Second {
		t.Fatalf("Backoff = %s, want interval when no ceiling", got)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32

	p := &Poller{
		Name:     "test",
		Interval: time.Millisecond,
		Tick: func(context.Context) error {
			if ticks.Add(1) == 5 {
				cancel()
			}
			return nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	if ticks.Load() < 5 {
		t.Fatalf("ticks = %d, want >= 5", ticks.Load())
	}
}

func TestRunStallsOnceAndRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	var stalls, recoveries atomic.Int32
	failing := errors.New("backend unavailable")

	p := &Poller{
		Name:        "test",
		Interval:    time.Millisecond,
		MaxInterval: 2 * time.Millisecond,
		StallAfter:  3,
		Tick: func(context.Context) error {
			n := ticks.Add(1)
			switch {
			case n <= 6:
				return failing
			case n == 7:
				return nil
			default:
				cancel()
				return nil
			}
		},
		OnStall: func(err error) {
			if !errors.Is(err, failing) {
				t.Errorf("OnStall got %v", err)
			}
			stalls.Add(1)
		},
		OnRecover: func() { recoveries.Add(1) },
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	if stalls.Load() != 1 {
		t.Errorf("stalls = %d, want 1", stalls.Load())
	}
	if recoveries.Load() != 1 {
		t.Errorf("recoveries = %d, want 1", recoveries.Load())
	}
}

func TestRunAbortsSlowTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sawDeadline atomic.Bool
	p := &Poller{
		Name:     "test",
		Interval: time.Millisecond,
		Timeout:  5 * time.Millisecond,
		Tick: func(tickCtx context.Context) error {
			<-tickCtx.Done()
			if errors.Is(tickCtx.Err(), context.DeadlineExceeded) {
				sawDeadline.Store(true)
				cancel()
			}
			return tickCtx.Err()
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("slow tick was not aborted")
	}
	if !sawDeadline.Load() {
		t.Fatal("tick context never hit its deadline")
	}
}

func TestRunRequiresTick(t *testing.T) {
	p := &Poller{Interval: time.Second}
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error without tick function")
	}
}
