package amqp

import (
	"log/slog"
	"time"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultDialTimeout    = 30 * time.Second

	// Reconnect backoff doubles per attempt but never waits longer than
	// this between dials.
	maxReconnectDelay = 5 * time.Minute
)

type config struct {
	logger         *slog.Logger
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	maxReconnects  int
}

func defaultConfig() *config {
	return &config{
		logger:         slog.Default(),
		reconnectDelay: defaultReconnectDelay,
		dialTimeout:    defaultDialTimeout,
		maxReconnects:  -1, // retry forever
	}
}

// Option adjusts engine construction.
type Option func(*config)

// WithLogger routes engine and connection logging to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReconnectDelay sets the base delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithDialTimeout bounds a single dial attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithMaxReconnects caps how often a dropped connection is re-dialed.
// Negative means retry forever, which is the default.
func WithMaxReconnects(n int) Option {
	return func(c *config) {
		c.maxReconnects = n
	}
}
