package embedded

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// Storage layout under the data directory. The four subdirectories are
// the engine's on-disk contract with operators: queue definitions and
// JetStream state live under the journal directory, the siblings hold
// binding snapshots, oversized payload spill, and page files.
const (
	bindingsDir      = "bindings"
	journalDir       = "journal"
	largeMessagesDir = "large-messages"
	pagingDir        = "paging"
)

// Broker sizing. Backlog beyond the memory ceiling lives on disk; the
// broker pages rather than blocking or dropping producers. These are
// constants, not configuration.
const (
	// memoryCeilingBytes caps broker memory for queued messages (30 MiB).
	memoryCeilingBytes = 30 * 1024 * 1024

	// defaultReadyTimeout bounds the wait for the in-process server to
	// accept connections.
	defaultReadyTimeout = 10 * time.Second
)

// Physical naming. Logical queue names are already validated upstream to
// be safe inside stream names and subject tokens.
const (
	streamPrefix  = "NESTQ_"
	subjectPrefix = "nestq.q."
)

// StreamName returns the JetStream stream backing a logical queue name.
func StreamName(queue string) string {
	return streamPrefix + queue
}

// SubjectName returns the subject messages for a logical queue travel on.
func SubjectName(queue string) string {
	return subjectPrefix + queue
}

// consumerName returns the durable consumer shared by a queue's slots.
func consumerName(queue string) string {
	return streamPrefix + queue + "_workers"
}

// Option configures the embedded engine.
type Option func(*config)

type config struct {
	asyncIO      bool
	readyTimeout time.Duration
	logger       *slog.Logger
}

// WithAsyncIO selects asynchronous journal flushing: writes are synced on
// an interval instead of per write. Faster, with a bounded loss window on
// hard crash. The default is conservative per-write sync.
func WithAsyncIO(async bool) Option {
	return func(c *config) {
		c.asyncIO = async
	}
}

// WithReadyTimeout bounds the wait for server readiness during New.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.readyTimeout = d
		}
	}
}

// WithLogger sets the logger. Broker-internal log lines are forwarded to
// it at their native levels.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// validateDataDir requires an existing directory, so that a typo'd path
// fails loudly instead of silently growing a broker store somewhere new.
func validateDataDir(dataDir string) error {
	if dataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	info, err := os.Stat(dataDir)
	if err != nil {
		return fmt.Errorf("data directory %q: %w", dataDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %q is not a directory", dataDir)
	}
	return nil
}

// layoutStorage creates the four storage subdirectories.
func layoutStorage(dataDir string) error {
	for _, sub := range []string{bindingsDir, journalDir, largeMessagesDir, pagingDir} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return nil
}

// serverOptions derives the in-process server configuration. No network
// listener, no auth, JetStream rooted at the journal directory.
func serverOptions(dataDir string, cfg config) *server.Options {
	opts := &server.Options{
		ServerName: "nestq",
		DontListen: true,
		NoLog:      true,
		NoSigs:     true,

		JetStream:          true,
		StoreDir:           filepath.Join(dataDir, journalDir),
		JetStreamMaxMemory: memoryCeilingBytes,
	}
	if cfg.asyncIO {
		// Interval sync: the server batches fsyncs (its default cadence).
		opts.SyncAlways = false
	} else {
		opts.SyncAlways = true
	}
	return opts
}
