package timemachine

import "context"

// Sink propagates a new time value to the system under test.
//
// Apply receives either an absolute timestamp formatted with Layout or the
// distinguished ResetSentinel. Implementations must tolerate repeated calls
// with the same or increasing values, and must report failure as an error so
// the engine can keep its state consistent with the external system.
type Sink interface {
	Apply(ctx context.Context, value string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, value string) error

// Apply implements Sink.
func (f SinkFunc) Apply(ctx context.Context, value string) error {
	return f(ctx, value)
}

// EntityState is a point-in-time snapshot of an entity in the system under
// test, as reported by an Oracle.
type EntityState struct {
	State      string
	Attributes map[string]any
}

// Oracle answers entity state queries. The engine uses it to read the sun
// entity's next-rising/next-setting instants for preset jumps.
type Oracle interface {
	// EntityState returns the state of the named entity, or nil (with a nil
	// error) when the entity is unknown.
	EntityState(ctx context.Context, entityID string) (*EntityState, error)
}

// Hook runs after every successfully applied time change. The surrounding
// system uses it to refresh credentials invalidated by a time jump. Hook
// failures cannot fail the time operation; the port deliberately has no
// error return.
type Hook interface {
	OnTimeSet()
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func()

// OnTimeSet implements Hook.
func (f HookFunc) OnTimeSet() {
	f()
}
