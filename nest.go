// Copyright 2025 Nestq Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nestq

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/glimte/nestq/contracts"
	"github.com/glimte/nestq/messaging"
	"github.com/glimte/nestq/serialization"
	"github.com/glimte/nestq/transports/embedded"
)

// Nest is the running command-queue subsystem: a broker engine, the
// queues it was opened with, their listener slots, and a producer for
// sending commands at them.
type Nest struct {
	engine   messaging.Engine
	registry *messaging.QueueRegistry
	codec    *serialization.Codec
	producer *messaging.CommandProducer
	logger   *slog.Logger

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
}

// Open boots the embedded broker in dataDir and provisions queues on it.
// The directory must already exist; the broker lays out its storage
// subdirectories inside it. Bootstrap is all-or-nothing: on any failure
// everything that had started is torn down and the error is returned.
func Open(ctx context.Context, dataDir string, queues []QueueConfig, opts ...Option) (*Nest, error) {
	cfg := newNestConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	codec, registry, err := prepare(cfg, queues)
	if err != nil {
		return nil, err
	}

	engine, err := embedded.New(dataDir,
		embedded.WithAsyncIO(cfg.asyncIO),
		embedded.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}

	return assemble(ctx, engine, codec, registry, cfg)
}

// OpenWithEngine provisions queues on a caller-supplied engine, typically
// an amqp.Engine pointed at an external broker. The nest owns the engine
// from this point on: it is closed by Stop, and also when OpenWithEngine
// itself fails.
func OpenWithEngine(ctx context.Context, engine messaging.Engine, queues []QueueConfig, opts ...Option) (*Nest, error) {
	if engine == nil {
		return nil, contracts.NewConfigError("engine", errors.New("must not be nil"))
	}

	cfg := newNestConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	codec, registry, err := prepare(cfg, queues)
	if err != nil {
		if cerr := engine.Close(); cerr != nil {
			cfg.logger.Warn("engine close after rejected config failed", "error", cerr)
		}
		return nil, err
	}

	return assemble(ctx, engine, codec, registry, cfg)
}

// prepare builds the codec and validates the queue set before anything
// touches disk or broker. Queues without a factory get the command
// dispatcher, so a plain {Name, Listeners} config executes the commands
// it receives.
func prepare(cfg *nestConfig, queues []QueueConfig) (*serialization.Codec, *messaging.QueueRegistry, error) {
	codec := serialization.NewCodec(cfg.types,
		serialization.WithCompressionThreshold(cfg.compressionThreshold))
	defaultFactory := messaging.DispatcherFactory(codec,
		messaging.WithDispatcherLogger(cfg.logger))

	registry := messaging.NewQueueRegistry()
	for _, qc := range queues {
		if qc.Factory == nil {
			qc.Factory = defaultFactory
		}
		if err := registry.Add(qc); err != nil {
			return nil, nil, contracts.NewConfigError("queues", err)
		}
	}
	return codec, registry, nil
}

func assemble(ctx context.Context, engine messaging.Engine, codec *serialization.Codec, registry *messaging.QueueRegistry, cfg *nestConfig) (*Nest, error) {
	pool := messaging.NewListenerPool(engine, registry,
		messaging.WithPoolLogger(cfg.logger),
		messaging.WithPoolMiddleware(cfg.middleware...),
	)
	if err := pool.Provision(ctx); err != nil {
		if cerr := engine.Close(); cerr != nil {
			cfg.logger.Warn("engine close after failed provisioning failed", "error", cerr)
		}
		return nil, contracts.NewConfigError("provision queues", err)
	}

	producer := messaging.NewCommandProducer(engine, registry, codec,
		messaging.WithProducerLogger(cfg.logger))

	return &Nest{
		engine:   engine,
		registry: registry,
		codec:    codec,
		producer: producer,
		logger:   cfg.logger,
	}, nil
}

// Send serializes cmd and publishes it to the named queue,
// fire-and-forget. The command's type must be registered and the queue
// must be one the nest was opened with.
//
// Errors are *ValidationError, *QueueNotFoundError or *SendError; after
// Stop, Send fails with a *SendError wrapping ErrNestClosed.
func (n *Nest) Send(ctx context.Context, queue string, cmd Command, opts ...SendOption) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()

	if closed {
		return &contracts.SendError{Queue: queue, Err: contracts.ErrNestClosed}
	}
	return n.producer.Send(ctx, queue, cmd, opts...)
}

// Stop tears the nest down: consumer connection, producer connection,
// then the engine's broker state. It never fails; teardown problems are
// logged and swallowed, and calling it again is a no-op.
func (n *Nest) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.mu.Unlock()

		if err := n.engine.Close(); err != nil {
			n.logger.Warn("engine close failed", "error", err)
		}
		n.logger.Info("nest stopped")
	})
}

// Inspect reports the current state of one of the nest's queues.
func (n *Nest) Inspect(ctx context.Context, queue string) (messaging.QueueInfo, error) {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()

	if closed {
		return messaging.QueueInfo{}, contracts.ErrNestClosed
	}
	if _, ok := n.registry.Resolve(queue); !ok {
		return messaging.QueueInfo{}, &contracts.QueueNotFoundError{Queue: queue}
	}
	return n.engine.InspectQueue(ctx, queue)
}

// QueueDepth returns how many messages are currently sitting in queue.
func (n *Nest) QueueDepth(ctx context.Context, queue string) (int, error) {
	info, err := n.Inspect(ctx, queue)
	if err != nil {
		return 0, err
	}
	return info.Messages, nil
}

// Queues returns the logical queue names in configuration order.
func (n *Nest) Queues() []string {
	return n.registry.Names()
}

// Engine returns the underlying broker engine.
func (n *Nest) Engine() messaging.Engine {
	return n.engine
}

// RegisterCommand adds a command type to the process-wide registry used
// by nests opened without WithTypeRegistry. The factory must produce a
// fresh command value per call; its concrete type becomes the reverse
// mapping for Send.
func RegisterCommand(typeName string, factory serialization.CommandFactory) error {
	return serialization.GlobalRegistry().Register(typeName, factory)
}
