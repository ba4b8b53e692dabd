package activity

import "context"

// Sink consumes batches of activity events. Implementations must honor ctx
// deadlines and tolerate repeated calls.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it so producers stay
// agnostic about buffering.
type Emitter interface {
	Emit(evt Event)
}

// Emit forwards evt to e when e is non-nil.
func Emit(e Emitter, evt Event) {
	if e == nil {
		return
	}
	e.Emit(evt)
}

// SinkFunc adapts a function to the Sink interface. Close is a no-op.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
