// Package throttle bounds outbound work by concurrency and by rate.
package throttle

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	DefaultRate   = 4
	DefaultWindow = time.Second
)

// Config sets the two independent limits. A zero Concurrency means no
// concurrency cap and a zero Rate means no rate cap.
type Config struct {
	Concurrency int
	Rate        int
	Window      time.Duration
}

// Throttle admits work when both the concurrency cap and the rate cap allow.
type Throttle struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New creates a Throttle from cfg.
func New(cfg Config) *Throttle {
	t := &Throttle{}
	if cfg.Concurrency > 0 {
		t.sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}
	if cfg.Rate > 0 {
		window := cfg.Window
		if window <= 0 {
			window = DefaultWindow
		}
		t.limiter = rate.NewLimiter(rate.Every(window/time.Duration(cfg.Rate)), cfg.Rate)
	}
	return t
}

// Unlimited returns a Throttle that admits everything immediately.
func Unlimited() *Throttle {
	return &Throttle{}
}

// Do waits for a slot, then runs fn. The concurrency slot is held until fn
// returns; the rate token is spent on admission.
func (t *Throttle) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer t.sem.Release(1)
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}
