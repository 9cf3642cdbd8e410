package messaging

import (
	"context"
	"fmt"
	"log/slog"
)

// PoolOption configures a ListenerPool.
type PoolOption func(*ListenerPool)

// WithPoolLogger sets the logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *ListenerPool) {
		p.logger = logger
	}
}

// WithPoolMiddleware wraps every slot listener, outermost-first.
func WithPoolMiddleware(mw ...Middleware) PoolOption {
	return func(p *ListenerPool) {
		p.middleware = append(p.middleware, mw...)
	}
}

// ListenerPool provisions the queues in a registry and runs their
// listener slots on an engine. Each slot gets its own consumer session
// and its own listener instance from the queue's factory; the pool never
// shares a listener between slots.
type ListenerPool struct {
	engine     Engine
	registry   *QueueRegistry
	middleware []Middleware
	logger     *slog.Logger
}

// NewListenerPool creates a pool over engine for the queues in registry.
func NewListenerPool(engine Engine, registry *QueueRegistry, opts ...PoolOption) *ListenerPool {
	p := &ListenerPool{
		engine:   engine,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision declares every queue, wires every listener slot, and then
// starts delivery exactly once. The ordering guarantees that no listener
// observes a message while later slots are still being wired. Any failure
// aborts provisioning; the caller tears the engine down.
func (p *ListenerPool) Provision(ctx context.Context) error {
	configs := p.registry.Configs()

	for _, qc := range configs {
		if err := p.engine.DeclareQueue(ctx, qc.Name); err != nil {
			return fmt.Errorf("declare queue %q: %w", qc.Name, err)
		}
		p.logger.Info("queue declared", "queue", qc.Name, "listeners", qc.Listeners)
	}

	for _, qc := range configs {
		for slot := 0; slot < qc.Listeners; slot++ {
			listener, err := qc.Factory()
			if err != nil {
				return fmt.Errorf("listener factory for queue %q slot %d: %w", qc.Name, slot, err)
			}
			if listener == nil {
				return fmt.Errorf("listener factory for queue %q slot %d returned nil", qc.Name, slot)
			}

			handler := p.slotHandler(qc.Name, slot, Chain(listener, p.middleware...))
			if err := p.engine.OpenConsumerSession(ctx, qc.Name, handler); err != nil {
				return fmt.Errorf("open consumer session for queue %q slot %d: %w", qc.Name, slot, err)
			}
		}
	}

	if err := p.engine.StartDelivery(ctx); err != nil {
		return fmt.Errorf("start delivery: %w", err)
	}

	p.logger.Info("listener pool running", "queues", len(configs))
	return nil
}

// slotHandler adapts one slot's listener to the engine's handler shape.
// Panics are contained here so a misbehaving listener cannot take down
// the slot's session goroutine.
func (p *ListenerPool) slotHandler(queue string, slot int, l Listener) DeliveryHandler {
	logger := p.logger.With("queue", queue, "slot", slot)

	return func(ctx context.Context, d *Delivery) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("listener panicked", "panic", r)
				err = fmt.Errorf("listener panic: %v", r)
			}
		}()

		if err = l.OnMessage(ctx, d); err != nil {
			// The listener (or its middleware) owns detailed error logging.
			logger.Debug("listener returned error", "error", err)
		}
		return err
	}
}
