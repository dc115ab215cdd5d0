package timemachine

import "errors"

var (
	// ErrInvalidInput is returned for malformed constraint values: unknown
	// month or weekday names, out-of-range date/time fields, or a negative
	// fast-forward duration. Detected before any sink call.
	ErrInvalidInput = errors.New("invalid time machine input")

	// ErrNonForwardTarget is returned when a computed target would not move
	// logical time strictly forward where forward progress is mandatory.
	ErrNonForwardTarget = errors.New("target does not advance logical time")

	// ErrSink is returned when the external time-injection call failed.
	// The logical clock is left untouched when this happens.
	ErrSink = errors.New("time sink apply failed")

	// ErrOracle is returned when the sun-event query failed, the entity was
	// unknown, or the needed attribute was absent or unparseable.
	ErrOracle = errors.New("entity oracle query failed")
)
