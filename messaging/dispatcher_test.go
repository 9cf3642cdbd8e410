package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/glimte/nestq/contracts"
	"github.com/glimte/nestq/serialization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executedActions collects what auditEvent commands did; reconstructed
// commands cannot carry test state, so they report through this channel.
var executedActions chan string

type auditEvent struct {
	Action string `json:"action"`
}

func (c *auditEvent) Execute(ctx context.Context) error {
	executedActions <- c.Action
	return nil
}

type failingCommand struct {
	Reason string `json:"reason"`
}

func (c *failingCommand) Execute(ctx context.Context) error {
	return errors.New(c.Reason)
}

func newDispatchCodec(t *testing.T) *serialization.Codec {
	t.Helper()
	reg := serialization.NewTypeRegistry()
	require.NoError(t, reg.Register("audit.event", func() contracts.Command { return &auditEvent{} }))
	require.NoError(t, reg.Register("test.failing", func() contracts.Command { return &failingCommand{} }))
	return serialization.NewCodec(reg)
}

func TestCommandDispatcher(t *testing.T) {
	t.Run("reconstructs and executes the concrete command", func(t *testing.T) {
		executedActions = make(chan string, 1)
		codec := newDispatchCodec(t)
		d := NewCommandDispatcher(codec)

		body, encoding, err := codec.EncodeCommand(&auditEvent{Action: "signup"})
		require.NoError(t, err)

		err = d.OnMessage(context.Background(), &Delivery{Queue: "audit", Body: body, Encoding: encoding})
		require.NoError(t, err)
		assert.Equal(t, "signup", <-executedActions)
	})

	t.Run("execution failure is returned, not swallowed", func(t *testing.T) {
		codec := newDispatchCodec(t)
		d := NewCommandDispatcher(codec)

		body, encoding, err := codec.EncodeCommand(&failingCommand{Reason: "smtp down"})
		require.NoError(t, err)

		err = d.OnMessage(context.Background(), &Delivery{Queue: "audit", Body: body, Encoding: encoding})
		assert.ErrorContains(t, err, "smtp down")
	})

	t.Run("unknown type tag fails without crashing", func(t *testing.T) {
		codec := newDispatchCodec(t)
		body, encoding, err := codec.EncodeCommand(&auditEvent{Action: "signup"})
		require.NoError(t, err)

		stranger := NewCommandDispatcher(serialization.NewCodec(serialization.NewTypeRegistry()))
		err = stranger.OnMessage(context.Background(), &Delivery{Queue: "audit", Body: body, Encoding: encoding})
		assert.ErrorIs(t, err, serialization.ErrTypeNotRegistered)
	})

	t.Run("malformed body fails cleanly", func(t *testing.T) {
		d := NewCommandDispatcher(newDispatchCodec(t))
		err := d.OnMessage(context.Background(), &Delivery{Queue: "audit", Body: []byte("not an envelope")})
		assert.Error(t, err)
	})
}

func TestDispatcherFactory(t *testing.T) {
	factory := DispatcherFactory(newDispatchCodec(t))

	a, err := factory()
	require.NoError(t, err)
	b, err := factory()
	require.NoError(t, err)

	assert.NotSame(t, a, b, "each slot gets its own dispatcher")
}
