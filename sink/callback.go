package sink

import "context"

// Func is called for each event.
type Func func(ctx context.Context, ev Event) error

// Callback delivers events via Go function calls, with zero
// serialisation.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Emit(ctx context.Context, ev Event) error {
	if c.fn != nil {
		return c.fn(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
