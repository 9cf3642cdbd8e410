package messaging

import (
	"context"
	"log/slog"

	"github.com/glimte/nestq/serialization"
)

// CommandDispatcher is the default listener for command queues. It
// reconstructs the concrete command a delivery carries through the type
// registry and executes it.
//
// Dispatch failures (unknown type tag, malformed body, Execute errors)
// are logged and returned; they never crash the slot, and because
// acknowledgment is unconditional they do not cause redelivery.
type CommandDispatcher struct {
	codec  *serialization.Codec
	logger *slog.Logger
}

// DispatcherOption configures a CommandDispatcher.
type DispatcherOption func(*CommandDispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *CommandDispatcher) {
		d.logger = logger
	}
}

// NewCommandDispatcher creates a dispatcher decoding through codec.
func NewCommandDispatcher(codec *serialization.Codec, opts ...DispatcherOption) *CommandDispatcher {
	d := &CommandDispatcher{
		codec:  codec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnMessage implements Listener.
func (d *CommandDispatcher) OnMessage(ctx context.Context, delivery *Delivery) error {
	cmd, env, err := d.codec.DecodeCommand(delivery.Body, delivery.Encoding)
	if err != nil {
		attrs := []any{"queue", delivery.Queue, "error", err}
		if env != nil {
			attrs = append(attrs, "messageId", env.ID, "type", env.Type)
		}
		d.logger.Error("cannot reconstruct command", attrs...)
		return err
	}

	if err := cmd.Execute(ctx); err != nil {
		d.logger.Error("command execution failed",
			"queue", delivery.Queue,
			"type", env.Type,
			"messageId", env.ID,
			"error", err,
		)
		return err
	}

	d.logger.Debug("command executed",
		"queue", delivery.Queue,
		"type", env.Type,
		"messageId", env.ID,
	)
	return nil
}

// DispatcherFactory returns a ListenerFactory producing one dispatcher
// per slot, for use as QueueConfig.Factory.
func DispatcherFactory(codec *serialization.Codec, opts ...DispatcherOption) ListenerFactory {
	return func() (Listener, error) {
		return NewCommandDispatcher(codec, opts...), nil
	}
}
