// Package timer implements a countdown that survives process suspension.
//
// Remaining time is always recomputed from wall-clock deltas rather than by
// counting ticks. A suspended process (laptop sleep, backgrounded runtime)
// simply observes a large delta on its next tick and reports the correct
// remaining time, including an immediate zero when the deadline passed during
// the gap.
package timer

import (
	"context"
	"sync"
	"time"
)

// Option configures optional Countdown behaviour.
type Option func(*Countdown)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Countdown) {
		c.now = now
	}
}

// Countdown tracks the remaining portion of a planned duration. Running time
// accrues only between Resume/Pause boundaries, so paused spans never consume
// the budget.
type Countdown struct {
	mu           sync.Mutex
	planned      time.Duration
	accrued      time.Duration
	runningSince time.Time // zero while paused
	now          func() time.Time
}

// NewCountdown starts a running countdown over the planned duration.
func NewCountdown(planned time.Duration, opts ...Option) *Countdown {
	c := &Countdown{planned: planned, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.runningSince = c.now()
	return c
}

// Reconstruct rebuilds a countdown from persisted session state: the planned
// duration, the running time accrued so far, and the start of the current
// running span (zero when the session is paused).
func Reconstruct(planned, accrued time.Duration, runningSince time.Time, opts ...Option) *Countdown {
	c := &Countdown{planned: planned, accrued: accrued, runningSince: runningSince, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Remaining reports the unconsumed portion of the planned duration, never negative.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Countdown) remainingLocked() time.Duration {
	elapsed := c.accrued
	if !c.runningSince.IsZero() {
		if delta := c.now().Sub(c.runningSince); delta > 0 {
			elapsed += delta
		}
	}
	remaining := c.planned - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Elapsed reports accrued running time, capped at the planned duration.
func (c *Countdown) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.planned - c.remainingLocked()
}

// Pause freezes the countdown. Pausing a paused countdown is a no-op.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runningSince.IsZero() {
		return
	}
	if delta := c.now().Sub(c.runningSince); delta > 0 {
		c.accrued += delta
	}
	c.runningSince = time.Time{}
}

// Resume continues a paused countdown. Resuming a running countdown is a no-op.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.runningSince.IsZero() {
		return
	}
	c.runningSince = c.now()
}

// Done reports whether the countdown reached zero.
func (c *Countdown) Done() bool {
	return c.Remaining() == 0
}

// Tick carries a countdown observation to the presentation layer.
type Tick struct {
	Remaining time.Duration
	// Done marks the boundary event: the final tick emitted when the
	// countdown reaches zero.
	Done bool
}

// Engine drives a Countdown and delivers ticks over a channel.
type Engine struct {
	countdown *Countdown
	interval  time.Duration
	ticks     chan Tick
}

// NewEngine constructs an Engine emitting at the given interval.
func NewEngine(countdown *Countdown, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		countdown: countdown,
		interval:  interval,
		ticks:     make(chan Tick, 1),
	}
}

// Ticks exposes the observation channel. The channel is closed when Run returns.
func (e *Engine) Ticks() <-chan Tick {
	return e.ticks
}

// Run emits ticks until the countdown reaches zero or the context is
// cancelled, then closes the tick channel. Each tick re-reads the countdown,
// so a sleep/wake gap is corrected on the first tick after waking. Slow
// consumers only ever delay observations; they never skew the countdown.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.ticks)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		remaining := e.countdown.Remaining()
		if remaining == 0 {
			e.emit(ctx, Tick{Done: true})
			return nil
		}
		e.emit(ctx, Tick{Remaining: remaining})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) emit(ctx context.Context, tick Tick) {
	select {
	case e.ticks <- tick:
	case <-ctx.Done():
	}
}
