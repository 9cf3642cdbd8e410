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
	"log/slog"
	"time"

	"github.com/glimte/nestq/contracts"
	"github.com/glimte/nestq/messaging"
	"github.com/glimte/nestq/serialization"
)

// nestConfig holds nest configuration.
type nestConfig struct {
	logger               *slog.Logger
	types                *serialization.TypeRegistry
	middleware           []messaging.Middleware
	compressionThreshold int
	asyncIO              bool
}

func newNestConfig() *nestConfig {
	return &nestConfig{
		logger:               slog.Default(),
		types:                serialization.GlobalRegistry(),
		compressionThreshold: serialization.DefaultCompressionThreshold,
	}
}

// Option configures a Nest before it opens.
type Option func(*nestConfig)

// WithLogger routes logging from every nest component to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *nestConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithAsyncIO asks the embedded broker for asynchronous journal writes,
// trading a little durability on power loss for write throughput.
// OpenWithEngine ignores it.
func WithAsyncIO(enabled bool) Option {
	return func(cfg *nestConfig) {
		cfg.asyncIO = enabled
	}
}

// WithTypeRegistry uses a private command registry instead of the
// process-wide one.
func WithTypeRegistry(registry *serialization.TypeRegistry) Option {
	return func(cfg *nestConfig) {
		if registry != nil {
			cfg.types = registry
		}
	}
}

// WithMiddleware wraps every listener slot, outermost first.
func WithMiddleware(mw ...messaging.Middleware) Option {
	return func(cfg *nestConfig) {
		cfg.middleware = append(cfg.middleware, mw...)
	}
}

// WithCompressionThreshold sets the serialized size in bytes from which
// message bodies are compressed on the wire. Zero disables compression.
func WithCompressionThreshold(n int) Option {
	return func(cfg *nestConfig) {
		if n >= 0 {
			cfg.compressionThreshold = n
		}
	}
}

// Re-exports, so everyday wiring needs only this package.
type (
	Command         = contracts.Command
	Envelope        = contracts.Envelope
	QueueConfig     = messaging.QueueConfig
	Listener        = messaging.Listener
	ListenerFactory = messaging.ListenerFactory
	Middleware      = messaging.Middleware
	DeliveryMode    = messaging.DeliveryMode
	SendOption      = messaging.SendOption

	ConfigError        = contracts.ConfigError
	ValidationError    = contracts.ValidationError
	QueueNotFoundError = contracts.QueueNotFoundError
	SendError          = contracts.SendError
)

const (
	// NonPersistent messages may be lost on broker restart. The default.
	NonPersistent = messaging.NonPersistent
	// Persistent messages are written durably and survive restart.
	Persistent = messaging.Persistent
)

// ErrNestClosed is wrapped by errors returned from a stopped nest.
var ErrNestClosed = contracts.ErrNestClosed

// WithDeliveryMode sets the delivery mode of one send explicitly.
func WithDeliveryMode(mode DeliveryMode) SendOption {
	return messaging.WithDeliveryMode(mode)
}

// WithPersistent toggles one send between Persistent and NonPersistent.
func WithPersistent(persistent bool) SendOption {
	return messaging.WithPersistent(persistent)
}

// WithPriority sets one send's priority, 0 (lowest) to 9 (highest).
func WithPriority(priority uint8) SendOption {
	return messaging.WithPriority(priority)
}

// WithTTL sets how long one message may sit unconsumed before the broker
// discards it. Zero means it never expires.
func WithTTL(ttl time.Duration) SendOption {
	return messaging.WithTTL(ttl)
}
