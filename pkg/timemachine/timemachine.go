// Package timemachine provides deterministic control of "current time" for a
// live system under test, so scheduled transitions, timers and sun-triggered
// automations can be exercised without waiting real wall-clock durations.
//
// The engine computes and validates time changes (absolute jumps, relative
// fast-forwards, constrained calendar jumps, sunrise/sunset jumps) and hands
// the result to an external Sink. It never regresses logical time except via
// the explicit Reset, and it does not itself talk to any container or
// process.
package timemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TheTarry/ha-harness/pkg/clock"
)

// Config configures a TimeMachine.
type Config struct {
	// Sink receives formatted time values destined for the system under
	// test. Required.
	Sink Sink

	// Oracle answers sun-event queries for AdvanceToPreset. Optional;
	// preset jumps fail without it.
	Oracle Oracle

	// Hook runs after every successful apply, e.g. to regenerate access
	// tokens invalidated by a time jump. Optional.
	Hook Hook

	// Wall supplies the real-time baseline used before any override has
	// been applied. Defaults to clock.Real().
	Wall clock.Clock

	// StrictForward makes SetAbsolute and SetTimeOfDay reject targets
	// earlier than the current logical time. By default they accept any
	// target: absolute sets model deliberate time travel.
	StrictForward bool

	// Logger for engine operations.
	Logger *slog.Logger
}

// TimeMachine is the facade over the temporal control engine. All mutating
// operations except Reset go through the same apply path and share its
// atomicity and forward-only guarantees. Safe for concurrent use.
type TimeMachine struct {
	mu     sync.Mutex
	clock  *TemporalClock
	oracle Oracle
	strict bool
	logger *slog.Logger
}

// New creates a TimeMachine.
func New(cfg Config) (*TimeMachine, error) {
	if cfg.Sink == nil {
		return nil, errors.New("timemachine: sink is required")
	}

	wall := cfg.Wall
	if wall == nil {
		wall = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TimeMachine{
		clock:  newTemporalClock(cfg.Sink, cfg.Hook, wall, logger),
		oracle: cfg.Oracle,
		strict: cfg.StrictForward,
		logger: logger,
	}, nil
}

// Current returns the logical "now": the last applied time, or the real
// current time if no override is active.
func (tm *TimeMachine) Current() time.Time {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.clock.Current()
}

// Overridden reports whether a fake time is currently applied.
func (tm *TimeMachine) Overridden() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.clock.Overridden()
}

// SetAbsolute moves logical time to t. Unless StrictForward is configured,
// t may be earlier than the current logical time.
func (tm *TimeMachine) SetAbsolute(ctx context.Context, t time.Time) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.checkStrict(t); err != nil {
		return err
	}
	return tm.clock.Apply(ctx, t)
}

// SetTimeOfDay keeps the current logical date and moves the clock to the
// given time of day. Like SetAbsolute this is a non-advancing set: a time
// earlier than the current moment is accepted unless StrictForward is
// configured.
func (tm *TimeMachine) SetTimeOfDay(ctx context.Context, hour, minute, second int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour %d out of range 0-23", ErrInvalidInput, hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalidInput, minute)
	}
	if second < 0 || second > 59 {
		return fmt.Errorf("%w: second %d out of range 0-59", ErrInvalidInput, second)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := tm.clock.Current()
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, now.Location())
	if err := tm.checkStrict(target); err != nil {
		return err
	}
	return tm.clock.Apply(ctx, target)
}

// FastForward advances logical time by d. Repeated calls accumulate: each
// advances from the last applied time, not from the original baseline. A
// zero duration is permitted and re-applies the current time.
func (tm *TimeMachine) FastForward(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: cannot fast-forward by negative duration %s (use SetAbsolute to go back in time)", ErrInvalidInput, d)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.clock.Apply(ctx, tm.clock.Current().Add(d))
}

// JumpToNext resolves c against the current logical time and jumps to the
// next occurrence satisfying every specified field. The result is always
// strictly in the future; see ResolveJump for the resolution rules.
func (tm *TimeMachine) JumpToNext(ctx context.Context, c Constraints) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	target, err := ResolveJump(tm.clock.Current(), c)
	if err != nil {
		return err
	}
	return tm.clock.Apply(ctx, target)
}

// AdvanceToPreset jumps to the next sunrise or sunset reported by the
// oracle, shifted by the signed offset (negative means "before"). The
// resolved target must be strictly after the current logical time or the
// call fails with ErrNonForwardTarget.
func (tm *TimeMachine) AdvanceToPreset(ctx context.Context, kind string, offset time.Duration) error {
	preset, err := parsePreset(kind)
	if err != nil {
		return err
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	target, err := resolvePreset(ctx, tm.oracle, tm.clock.Current(), preset, offset)
	if err != nil {
		return err
	}
	return tm.clock.Apply(ctx, target)
}

// Reset returns the system under test to real time. It never fails: sink
// errors are logged and swallowed because reset commonly runs during
// teardown. After Reset the forward-only invariant no longer constrains the
// next operation; a fresh baseline is established on first use.
func (tm *TimeMachine) Reset(ctx context.Context) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.clock.Reset(ctx)
}

// checkStrict enforces the optional StrictForward policy for absolute sets.
// Callers hold tm.mu.
func (tm *TimeMachine) checkStrict(target time.Time) error {
	if !tm.strict {
		return nil
	}
	now := tm.clock.Current()
	if target.Truncate(time.Second).Before(now) {
		return fmt.Errorf("%w: %s is before current logical time %s (StrictForward is set)",
			ErrNonForwardTarget, target.Format(Layout), now.Format(Layout))
	}
	return nil
}
