package messaging

import (
	"fmt"
	"regexp"
	"sync"
)

// Queue names must be safe for every engine's physical naming scheme
// (JetStream stream names and subjects, AMQP queue names).
var queueNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// QueueConfig declares one durable queue and the listeners that consume
// it. The set of QueueConfigs handed to Open is fixed for the lifetime of
// the Nest.
type QueueConfig struct {
	// Name is the logical queue name producers send to.
	Name string

	// Listeners is the number of concurrent listener slots, >= 0. Zero
	// declares the queue without consuming from it.
	Listeners int

	// Factory produces one fresh listener per slot. Required when
	// Listeners > 0. Most command queues use NewCommandDispatcher here.
	Factory ListenerFactory
}

// Validate checks the config in isolation; uniqueness across configs is
// the registry's job.
func (c QueueConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("queue name cannot be empty")
	}
	if !queueNamePattern.MatchString(c.Name) {
		return fmt.Errorf("queue name %q may only contain letters, digits, '-' and '_'", c.Name)
	}
	if c.Listeners < 0 {
		return fmt.Errorf("queue %q: listener count cannot be negative", c.Name)
	}
	if c.Listeners > 0 && c.Factory == nil {
		return fmt.Errorf("queue %q: %d listeners configured but no factory", c.Name, c.Listeners)
	}
	return nil
}

// QueueRegistry records the queues a Nest was opened with. Send resolves
// target names against it, which keeps "unknown queue" a cheap local
// failure instead of a broker round-trip.
type QueueRegistry struct {
	mu     sync.RWMutex
	order  []string
	queues map[string]QueueConfig
}

// NewQueueRegistry creates an empty registry.
func NewQueueRegistry() *QueueRegistry {
	return &QueueRegistry{queues: make(map[string]QueueConfig)}
}

// Add validates c and records it. Duplicate names fail.
func (r *QueueRegistry) Add(c QueueConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.queues[c.Name]; exists {
		return fmt.Errorf("duplicate queue name %q", c.Name)
	}
	r.queues[c.Name] = c
	r.order = append(r.order, c.Name)
	return nil
}

// Resolve looks up a queue by logical name.
func (r *QueueRegistry) Resolve(name string) (QueueConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.queues[name]
	return c, ok
}

// Configs returns all registered queues in registration order.
func (r *QueueRegistry) Configs() []QueueConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]QueueConfig, 0, len(r.order))
	for _, name := range r.order {
		configs = append(configs, r.queues[name])
	}
	return configs
}

// Names returns all registered queue names in registration order.
func (r *QueueRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered queues.
func (r *QueueRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}
