// Package retry provides bounded retries with exponential backoff for calls
// against the containers under test, which routinely refuse connections for
// a few seconds after startup or after a large time jump.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/TheTarry/ha-harness/pkg/clock"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// 0 means retry until the context is cancelled.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// Jitter randomizes each delay by +/- this fraction of it.
	Jitter float64

	// RetryableFunc decides whether an error is worth retrying.
	// If nil, every non-nil error is retried.
	RetryableFunc func(error) bool

	// Clock drives the delays. Defaults to real time.
	Clock clock.Clock
}

// APIConfig returns retry configuration tuned for HTTP calls against the
// local test containers: failures there are short-lived (startup, restart
// after a time jump), so retries are quick and few.
func APIConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Do executes fn with retry, returning the last error if all attempts fail.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 3 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return errors.Join(ctx.Err(), lastErr)
			}
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryableFunc != nil && !cfg.RetryableFunc(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter > 0 {
			spread := float64(delay) * cfg.Jitter
			wait = delay + time.Duration(rand.Float64()*2*spread-spread)
		}

		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		case <-clk.After(wait):
		}

		delay = time.Duration(math.Min(float64(delay)*cfg.Multiplier, float64(cfg.MaxDelay)))
	}

	return lastErr
}

// DoWithValue executes fn with retry logic and returns its value.
func DoWithValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
