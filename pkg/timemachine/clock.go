package timemachine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TheTarry/ha-harness/pkg/clock"
)

// Layout is the textual timestamp format handed to the Sink. It matches
// libfaketime's absolute-time syntax.
const Layout = "2006-01-02 15:04:05"

// ResetSentinel instructs the sink to stop overriding time and track real
// time again (libfaketime offset syntax).
const ResetSentinel = "+0"

// TemporalClock owns the engine's logical "now" and keeps it consistent with
// the system under test: a target is committed only after the sink accepted
// it. Logical time is naive (single assumed civil timezone) with second
// resolution.
//
// TemporalClock is not synchronized; the TimeMachine facade serializes all
// access to it.
type TemporalClock struct {
	sink   Sink
	hook   Hook
	wall   clock.Clock
	logger *slog.Logger

	current    time.Time
	overridden bool
}

func newTemporalClock(sink Sink, hook Hook, wall clock.Clock, logger *slog.Logger) *TemporalClock {
	return &TemporalClock{
		sink:   sink,
		hook:   hook,
		wall:   wall,
		logger: logger,
	}
}

// Current returns the last committed logical time. Before any time has been
// applied it reports the real current time; that baseline is captured per
// call and is not persisted until an operation commits.
func (c *TemporalClock) Current() time.Time {
	if c.overridden {
		return c.current
	}
	return c.wall.Now().Truncate(time.Second)
}

// Overridden reports whether a fake time is currently applied.
func (c *TemporalClock) Overridden() bool {
	return c.overridden
}

// Apply transmits target through the sink and, on success, commits it as the
// new logical time and invokes the post-update hook. The operation is
// atomic: on sink failure neither the external system nor the logical clock
// moves.
func (c *TemporalClock) Apply(ctx context.Context, target time.Time) error {
	target = target.Truncate(time.Second)
	value := target.Format(Layout)

	if err := c.sink.Apply(ctx, value); err != nil {
		return fmt.Errorf("%w: applying %q: %w", ErrSink, value, err)
	}

	c.current = target
	c.overridden = true
	c.logger.Debug("applied logical time", slog.String("time", value))

	if c.hook != nil {
		c.hook.OnTimeSet()
	}
	return nil
}

// Reset returns the system under test to real time and clears the override.
// Sink failures are logged and swallowed: reset commonly runs during
// teardown, when the sink may already be gone.
func (c *TemporalClock) Reset(ctx context.Context) {
	if err := c.sink.Apply(ctx, ResetSentinel); err != nil {
		c.logger.Debug("reset ignored sink failure", slog.String("error", err.Error()))
	}
	c.current = time.Time{}
	c.overridden = false
	c.logger.Debug("reset to real time")
}
