package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// TickFunc performs one poll. The context carries the per-tick timeout and
// is cancelled when the poller stops, which aborts an in-flight request.
type TickFunc func(ctx context.Context) error

// Poller calls a TickFunc on a fixed interval. Failed ticks are retried with
// exponential backoff up to MaxInterval; after StallAfter consecutive
// failures OnStall is called once, and the next success calls OnRecover.
type Poller struct {
	Name        string
	Interval    time.Duration
	MaxInterval time.Duration
	Timeout     time.Duration
	StallAfter  int

	Tick      TickFunc
	OnStall   func(err error)
	OnRecover func()

	Logger *slog.Logger
	Meter  metric.Meter
}

// Run polls until ctx is cancelled. The first tick happens immediately.
// Run returns ctx.Err() on shutdown.
func (p *Poller) Run(ctx context.Context) error {
	if p.Tick == nil {
		return errors.New("poller has no tick function")
	}
	if p.Interval <= 0 {
		return errors.New("poller interval must be positive")
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("poller", p.Name)

	meter := p.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("poller")
	}
	failures, err := meter.Int64Counter(
		"poll.failures",
		metric.WithDescription("Failed poll ticks"),
	)
	if err != nil {
		logger.Warn("failed to create counter", "error", err)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	consecutive := 0
	stalled := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		err := p.tick(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			consecutive++
			if failures != nil {
				failures.Add(ctx, 1)
			}
			logger.Warn("poll failed", "error", err, "consecutive_failures", consecutive)

			if !stalled && p.StallAfter > 0 && consecutive >= p.StallAfter {
				stalled = true
				if p.OnStall != nil {
					p.OnStall(err)
				}
			}
		} else {
			if stalled {
				logger.Info("poll recovered", "after_failures", consecutive)
				if p.OnRecover != nil {
					p.OnRecover()
				}
			}
			consecutive = 0
			stalled = false
		}

		timer.Reset(p.Backoff(consecutive))
	}
}

func (p *Poller) tick(ctx context.Context) error {
	if p.Timeout <= 0 {
		return p.Tick(ctx)
	}
	tickCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return p.Tick(tickCtx)
}

// Backoff returns the delay before the next tick after the given number of
// consecutive failures: Interval doubled per failure, capped at MaxInterval.
func (p *Poller) Backoff(consecutive int) time.Duration {
	delay := p.Interval
	ceiling := p.MaxInterval
	if ceiling < delay {
		ceiling = delay
	}
	for i := 0; i < consecutive; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}
