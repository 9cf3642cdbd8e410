package embedded

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/glimte/nestq/contracts"
)

// Engine is the in-process broker. It owns the server and exactly two
// client connections: consumer sessions share one, producer sessions the
// other.
type Engine struct {
	dataDir string
	asyncIO bool
	logger  *slog.Logger

	srv          *server.Server
	consumerConn *nats.Conn
	producerConn *nats.Conn
	jsConsumer   jetstream.JetStream
	jsProducer   jetstream.JetStream

	mu        sync.Mutex
	slots     []*consumerSlot
	slotCount map[string]int
	started   bool
	closed    bool

	closeOnce sync.Once
	wg        sync.WaitGroup
	baseCtx   context.Context
	cancel    context.CancelFunc
}

// New bootstraps the embedded broker: validates the data directory, lays
// out its storage subdirectories, starts the server in-process, waits for
// readiness, and opens the two client connections. Any failure tears down
// whatever had started and returns the error; a half-started engine is
// never returned.
func New(dataDir string, opts ...Option) (*Engine, error) {
	cfg := config{
		readyTimeout: defaultReadyTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := validateDataDir(dataDir); err != nil {
		return nil, contracts.NewConfigError("data directory", err)
	}
	if err := layoutStorage(dataDir); err != nil {
		return nil, contracts.NewConfigError("data directory", err)
	}

	srv, err := server.NewServer(serverOptions(dataDir, cfg))
	if err != nil {
		return nil, fmt.Errorf("embedded: configure server: %w", err)
	}
	srv.SetLoggerV2(newServerLogger(cfg.logger), false, false, false)

	go srv.Start()
	if !srv.ReadyForConnections(cfg.readyTimeout) {
		shutdownServer(srv)
		return nil, fmt.Errorf("embedded: server not ready within %s", cfg.readyTimeout)
	}

	consumerConn, err := connect(srv, "nestq-consumer")
	if err != nil {
		shutdownServer(srv)
		return nil, fmt.Errorf("embedded: consumer connection: %w", err)
	}
	producerConn, err := connect(srv, "nestq-producer")
	if err != nil {
		consumerConn.Close()
		shutdownServer(srv)
		return nil, fmt.Errorf("embedded: producer connection: %w", err)
	}

	teardown := func() {
		consumerConn.Close()
		producerConn.Close()
		shutdownServer(srv)
	}

	jsConsumer, err := jetstream.New(consumerConn)
	if err != nil {
		teardown()
		return nil, fmt.Errorf("embedded: consumer jetstream setup: %w", err)
	}
	jsProducer, err := jetstream.New(producerConn)
	if err != nil {
		teardown()
		return nil, fmt.Errorf("embedded: producer jetstream setup: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		dataDir:      dataDir,
		asyncIO:      cfg.asyncIO,
		logger:       cfg.logger,
		srv:          srv,
		consumerConn: consumerConn,
		producerConn: producerConn,
		jsConsumer:   jsConsumer,
		jsProducer:   jsProducer,
		slotCount:    make(map[string]int),
		baseCtx:      ctx,
		cancel:       cancel,
	}
	cfg.logger.Info("embedded broker running",
		"dataDir", dataDir,
		"asyncIO", cfg.asyncIO,
	)
	return e, nil
}

func connect(srv *server.Server, name string) (*nats.Conn, error) {
	return nats.Connect("",
		nats.InProcessServer(srv),
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
}

func shutdownServer(srv *server.Server) {
	srv.Shutdown()
	srv.WaitForShutdown()
}

// Close tears the engine down: consumer side first so in-flight handlers
// drain, then the producer connection, then the server. Each step is
// unconditional; Close never fails and may be called more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		slots := e.slots
		e.mu.Unlock()

		e.cancel()
		for _, s := range slots {
			s.stop()
		}
		e.wg.Wait()

		e.consumerConn.Close()
		e.producerConn.Close()
		shutdownServer(e.srv)
		e.logger.Info("embedded broker stopped", "dataDir", e.dataDir)
	})
	return nil
}

// DataDir returns the storage root the engine was opened with.
func (e *Engine) DataDir() string { return e.dataDir }

// AsyncIO reports the journal flush strategy.
func (e *Engine) AsyncIO() bool { return e.asyncIO }

// Server exposes the underlying broker for advanced tuning. Most callers
// never need it.
func (e *Engine) Server() *server.Server { return e.srv }

// ConsumerConn exposes the connection all consumer sessions share.
func (e *Engine) ConsumerConn() *nats.Conn { return e.consumerConn }

// ProducerConn exposes the connection all producer sessions share.
func (e *Engine) ProducerConn() *nats.Conn { return e.producerConn }

// JetStream exposes the producer-side JetStream context.
func (e *Engine) JetStream() jetstream.JetStream { return e.jsProducer }
