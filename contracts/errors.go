package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced through the typed errors below.
var (
	// ErrNestClosed is returned (wrapped in SendError) when an operation is
	// attempted after Stop.
	ErrNestClosed = errors.New("nestq: nest closed")

	// ErrNilCommand is returned (wrapped in ValidationError) when Send is
	// given a nil command.
	ErrNilCommand = errors.New("nestq: nil command")
)

// ConfigError reports invalid construction input or a bootstrap step that
// failed. When Open returns a ConfigError nothing was left running.
type ConfigError struct {
	Op  string // the field or bootstrap step that failed
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("nestq: config: %s", e.Op)
	}
	return fmt.Sprintf("nestq: config: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a configuration failure in step op.
func NewConfigError(op string, err error) *ConfigError {
	return &ConfigError{Op: op, Err: err}
}

// ValidationError reports a send parameter that failed validation. It is
// always returned before any I/O is attempted, so the caller knows the
// command was never enqueued.
type ValidationError struct {
	Param string // parameter name: "priority", "ttl", "deliveryMode", "command"
	Value interface{}
	Err   error // optional underlying cause
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nestq: invalid %s %v: %v", e.Param, e.Value, e.Err)
	}
	return fmt.Sprintf("nestq: invalid %s %v", e.Param, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// QueueNotFoundError reports a send or inspect against a queue name that
// was not part of the configuration the Nest was opened with. Returned
// before any I/O is attempted.
type QueueNotFoundError struct {
	Queue string
}

func (e *QueueNotFoundError) Error() string {
	return fmt.Sprintf("nestq: queue %q not found", e.Queue)
}

// SendError reports a failure after validation and queue resolution
// succeeded: serialization, session setup, or the publish itself. The
// command may or may not have reached the queue; the caller decides
// whether to retry.
type SendError struct {
	Queue string
	Type  string // command type tag, when known
	Err   error
}

func (e *SendError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("nestq: send to %q failed: %v", e.Queue, e.Err)
	}
	return fmt.Sprintf("nestq: send %s to %q failed: %v", e.Type, e.Queue, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
