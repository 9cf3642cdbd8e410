package serialization

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/glimte/nestq/contracts"
)

var (
	// ErrTypeNotRegistered is returned when a type tag or command value has
	// no registration.
	ErrTypeNotRegistered = errors.New("serialization: type not registered")

	// ErrDuplicateType is returned when a tag is registered twice with
	// different command types.
	ErrDuplicateType = errors.New("serialization: type already registered")
)

// CommandFactory produces a fresh zero value of one command type, ready to
// be unmarshaled into.
type CommandFactory func() contracts.Command

// TypeRegistry is a closed mapping from string type tags to command
// factories. Producers use it to resolve the tag for an outgoing command;
// dispatchers use it to construct the concrete type for an incoming one.
// Registration normally happens once at startup; all methods are safe for
// concurrent use.
type TypeRegistry struct {
	mu        sync.RWMutex
	factories map[string]CommandFactory
	names     map[reflect.Type]string
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		factories: make(map[string]CommandFactory),
		names:     make(map[reflect.Type]string),
	}
}

// Register binds a type tag to a factory. The factory is invoked once to
// learn the concrete type it produces, which also powers the reverse
// lookup in NameOf. Registering the same tag again with the same concrete
// type is a no-op; with a different type it fails with ErrDuplicateType.
func (r *TypeRegistry) Register(typeName string, factory CommandFactory) error {
	if typeName == "" {
		return fmt.Errorf("serialization: type name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("serialization: factory for %s cannot be nil", typeName)
	}

	probe := factory()
	if probe == nil {
		return fmt.Errorf("serialization: factory for %s returned nil", typeName)
	}
	t := commandType(probe)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.names[t]; ok && existing != typeName {
		return fmt.Errorf("%w: %v already registered as %s", ErrDuplicateType, t, existing)
	}
	if _, ok := r.factories[typeName]; ok {
		if r.names[t] == typeName {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateType, typeName)
	}

	r.factories[typeName] = factory
	r.names[t] = typeName
	return nil
}

// Create constructs a fresh command value for a type tag.
func (r *TypeRegistry) Create(typeName string) (contracts.Command, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotRegistered, typeName)
	}
	cmd := factory()
	if cmd == nil {
		return nil, fmt.Errorf("serialization: factory for %s returned nil", typeName)
	}
	return cmd, nil
}

// NameOf returns the registered tag for a command value.
func (r *TypeRegistry) NameOf(cmd contracts.Command) (string, error) {
	if cmd == nil {
		return "", fmt.Errorf("serialization: command cannot be nil")
	}
	t := commandType(cmd)

	r.mu.RLock()
	name, ok := r.names[t]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %v", ErrTypeNotRegistered, t)
	}
	return name, nil
}

// IsRegistered reports whether a type tag has a factory.
func (r *TypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeName]
	return ok
}

// ListTypes returns all registered type tags.
func (r *TypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for typeName := range r.factories {
		types = append(types, typeName)
	}
	return types
}

// commandType normalizes a command value to its struct type so that
// *SendWelcomeEmail and SendWelcomeEmail resolve to the same registration.
func commandType(cmd contracts.Command) reflect.Type {
	t := reflect.TypeOf(cmd)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Global registry instance used when no explicit registry is configured.
var globalRegistry = NewTypeRegistry()

// GlobalRegistry returns the process-wide default registry.
func GlobalRegistry() *TypeRegistry {
	return globalRegistry
}
