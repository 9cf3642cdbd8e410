// Package contracts defines the core types shared by every layer of nestq:
// the Command interface implemented by application message types, the
// Envelope wire format that carries them, and the error taxonomy surfaced
// by the public API.
//
// Commands are self-executing units of work. An application defines a
// struct with JSON-serializable fields, implements Execute, and registers
// a factory for it with the type registry:
//
//	type SendWelcomeEmail struct {
//	    To string `json:"to"`
//	}
//
//	func (c *SendWelcomeEmail) Execute(ctx context.Context) error {
//	    return mailer.Welcome(ctx, c.To)
//	}
//
// The contracts package has no dependency on any broker engine and can be
// imported freely by application code.
package contracts
