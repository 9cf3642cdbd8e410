package contracts

import "context"

// Command is a self-executing unit of work. Producers send command values
// to a named queue; a listener slot on that queue reconstructs the value
// from its registered factory and invokes Execute.
//
// Implementations must be JSON-serializable: every field that should
// travel with the command must be exported (or carry a json tag), and the
// zero value produced by the registered factory must be a valid unmarshal
// target.
type Command interface {
	// Execute performs the work the command describes. The context is the
	// listener slot's context and is canceled when the owning Nest stops.
	Execute(ctx context.Context) error
}
