package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/nestq/contracts"
	"github.com/glimte/nestq/serialization"
)

// ProducerOption configures a CommandProducer.
type ProducerOption func(*CommandProducer)

// WithProducerLogger sets the logger.
func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(p *CommandProducer) {
		p.logger = logger
	}
}

// SendOptions carries the per-message settings of one send.
type SendOptions struct {
	DeliveryMode DeliveryMode
	Priority     uint8
	TTL          time.Duration
}

// SendOption configures one send.
type SendOption func(*SendOptions)

// WithDeliveryMode sets the delivery mode explicitly.
func WithDeliveryMode(mode DeliveryMode) SendOption {
	return func(o *SendOptions) {
		o.DeliveryMode = mode
	}
}

// WithPersistent toggles between Persistent and NonPersistent delivery.
func WithPersistent(persistent bool) SendOption {
	return func(o *SendOptions) {
		if persistent {
			o.DeliveryMode = Persistent
		} else {
			o.DeliveryMode = NonPersistent
		}
	}
}

// WithPriority sets the message priority, 0 (lowest) to 9 (highest).
func WithPriority(priority uint8) SendOption {
	return func(o *SendOptions) {
		o.Priority = priority
	}
}

// WithTTL sets how long the message may sit unconsumed before the broker
// discards it. Zero means it never expires.
func WithTTL(ttl time.Duration) SendOption {
	return func(o *SendOptions) {
		o.TTL = ttl
	}
}

// CommandProducer serializes commands and publishes them to declared
// queues. It validates everything it can locally before touching the
// broker and opens a fresh producer session per send.
type CommandProducer struct {
	engine   Engine
	registry *QueueRegistry
	codec    *serialization.Codec
	logger   *slog.Logger
}

// NewCommandProducer creates a producer over engine, resolving queue
// names against registry and serializing through codec.
func NewCommandProducer(engine Engine, registry *QueueRegistry, codec *serialization.Codec, opts ...ProducerOption) *CommandProducer {
	p := &CommandProducer{
		engine:   engine,
		registry: registry,
		codec:    codec,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send publishes cmd to the named queue, fire-and-forget.
//
// Failure taxonomy: *contracts.ValidationError for out-of-range settings
// or an unregistered command type, *contracts.QueueNotFoundError for an
// undeclared queue (both before any I/O), *contracts.SendError for
// anything that fails after that. A SendError does not say whether the
// message reached the queue; retrying is the caller's call.
func (p *CommandProducer) Send(ctx context.Context, queue string, cmd contracts.Command, opts ...SendOption) error {
	options := SendOptions{
		DeliveryMode: DefaultDeliveryMode,
		Priority:     DefaultPriority,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if cmd == nil {
		return &contracts.ValidationError{Param: "command", Value: "<nil>", Err: contracts.ErrNilCommand}
	}
	if !options.DeliveryMode.Valid() {
		return &contracts.ValidationError{Param: "deliveryMode", Value: uint8(options.DeliveryMode)}
	}
	if options.Priority > MaxPriority {
		return &contracts.ValidationError{Param: "priority", Value: options.Priority}
	}
	if options.TTL < 0 {
		return &contracts.ValidationError{Param: "ttl", Value: options.TTL.String()}
	}

	typeName, err := p.codec.Registry().NameOf(cmd)
	if err != nil {
		return &contracts.ValidationError{Param: "command", Value: fmt.Sprintf("%T", cmd), Err: err}
	}

	if _, ok := p.registry.Resolve(queue); !ok {
		return &contracts.QueueNotFoundError{Queue: queue}
	}

	body, encoding, err := p.codec.EncodeCommand(cmd)
	if err != nil {
		return &contracts.SendError{Queue: queue, Type: typeName, Err: err}
	}

	session, err := p.engine.OpenProducerSession(ctx)
	if err != nil {
		return &contracts.SendError{Queue: queue, Type: typeName, Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Warn("producer session close failed", "queue", queue, "error", err)
		}
	}()

	out := &Outbound{
		Queue:        queue,
		Body:         body,
		Encoding:     encoding,
		DeliveryMode: options.DeliveryMode,
		Priority:     options.Priority,
		TTL:          options.TTL,
	}
	if err := session.Publish(ctx, out); err != nil {
		return &contracts.SendError{Queue: queue, Type: typeName, Err: err}
	}

	p.logger.Debug("command sent",
		"queue", queue,
		"type", typeName,
		"mode", options.DeliveryMode.String(),
		"priority", options.Priority,
		"ttl", options.TTL,
	)
	return nil
}
