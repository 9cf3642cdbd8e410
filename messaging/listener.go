package messaging

import "context"

// Listener consumes deliveries from one queue slot. A listener instance
// is owned by exactly one slot and sees its messages one at a time, so
// implementations need no internal locking for per-message state.
type Listener interface {
	OnMessage(ctx context.Context, d *Delivery) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, d *Delivery) error

func (f ListenerFunc) OnMessage(ctx context.Context, d *Delivery) error {
	return f(ctx, d)
}

// ListenerFactory produces one fresh listener per slot. Returning an
// error aborts provisioning.
type ListenerFactory func() (Listener, error)

// Middleware wraps a listener with cross-cutting behavior. The pool
// applies middleware outermost-first, so the first middleware configured
// sees the delivery first.
type Middleware func(next Listener) Listener

// Chain wraps l in mw, outermost-first.
func Chain(l Listener, mw ...Middleware) Listener {
	for i := len(mw) - 1; i >= 0; i-- {
		l = mw[i](l)
	}
	return l
}
