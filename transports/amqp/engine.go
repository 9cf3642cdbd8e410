package amqp

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/glimte/nestq/contracts"
)

// Engine implements messaging.Engine on top of an external AMQP broker.
// Consumer sessions are channels on one managed connection, producer
// sessions are channels on the other.
type Engine struct {
	logger *slog.Logger

	consumer *managedConn
	producer *managedConn

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	bindings  []*consumerBinding
	slotCount map[string]int
	started   bool
	closed    bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New dials the broker twice, once for consuming and once for producing,
// and fails if either connection cannot be established.
func New(url string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if url == "" {
		return nil, contracts.NewConfigError("broker URL", errors.New("must not be empty"))
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger:    cfg.logger,
		baseCtx:   baseCtx,
		cancel:    cancel,
		slotCount: make(map[string]int),
	}
	e.consumer = newManagedConn(url, "consumer", cfg)
	e.producer = newManagedConn(url, "producer", cfg)
	e.consumer.onReconnect = e.resumeDelivery

	if err := e.consumer.connect(); err != nil {
		cancel()
		return nil, err
	}
	if err := e.producer.connect(); err != nil {
		_ = e.consumer.close()
		cancel()
		return nil, err
	}
	return e, nil
}

// resumeDelivery re-opens every consumer session after the consumer
// connection came back. Messages that were unacknowledged when the old
// connection died are redelivered by the broker.
func (e *Engine) resumeDelivery() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !e.started {
		return
	}
	for _, b := range e.bindings {
		if err := e.rewireLocked(b); err != nil {
			e.logger.Error("cannot resume consumer session",
				"queue", b.queue,
				"slot", b.slot,
				"error", err)
		}
	}
}

func (e *Engine) rewireLocked(b *consumerBinding) error {
	ch, err := e.consumer.channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return err
	}
	b.ch = ch
	return e.consumeLocked(b)
}

// Close implements messaging.Engine. The consumer side goes down first so
// in-flight handlers drain before the producer connection disappears.
// Teardown is best-effort: every step runs, failures are logged.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.cancel()
		if err := e.consumer.close(); err != nil {
			e.logger.Warn("consumer connection close failed", "error", err)
		}
		e.wg.Wait()
		if err := e.producer.close(); err != nil {
			e.logger.Warn("producer connection close failed", "error", err)
		}
		e.logger.Info("amqp engine stopped")
	})
	return nil
}
