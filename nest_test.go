package nestq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/nestq/contracts"
	"github.com/glimte/nestq/messaging"
	"github.com/glimte/nestq/serialization"
)

// fakeEngine records every call the nest makes so tests can check the
// provisioning order and publish path without a broker.
type fakeEngine struct {
	mu          sync.Mutex
	declared    []string
	handlers    map[string][]messaging.DeliveryHandler
	published   []*messaging.Outbound
	started     bool
	closeCalls  int
	failDeclare bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{handlers: make(map[string][]messaging.DeliveryHandler)}
}

func (f *fakeEngine) DeclareQueue(ctx context.Context, queue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeclare {
		return errors.New("declare refused")
	}
	f.declared = append(f.declared, queue)
	return nil
}

func (f *fakeEngine) OpenConsumerSession(ctx context.Context, queue string, handler messaging.DeliveryHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[queue] = append(f.handlers[queue], handler)
	return nil
}

func (f *fakeEngine) StartDelivery(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeEngine) OpenProducerSession(ctx context.Context) (messaging.ProducerSession, error) {
	return &fakeSession{engine: f}, nil
}

func (f *fakeEngine) InspectQueue(ctx context.Context, queue string) (messaging.QueueInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	depth := 0
	for _, out := range f.published {
		if out.Queue == queue {
			depth++
		}
	}
	return messaging.QueueInfo{
		Name:     queue,
		Physical: queue,
		Messages: depth,
		Slots:    len(f.handlers[queue]),
	}, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeEngine) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakeEngine) lastPublished(t *testing.T) *messaging.Outbound {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.published)
	return f.published[len(f.published)-1]
}

type fakeSession struct {
	engine *fakeEngine
}

func (s *fakeSession) Publish(ctx context.Context, out *messaging.Outbound) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.published = append(s.engine.published, out)
	return nil
}

func (s *fakeSession) Close() error { return nil }

// rootExecutions collects Execute side effects; tests that dispatch
// re-make it.
var rootExecutions chan string

type auditSignup struct {
	Email string `json:"email"`
}

func (c *auditSignup) Execute(ctx context.Context) error {
	rootExecutions <- c.Email
	return nil
}

type strayCommand struct{}

func (c *strayCommand) Execute(ctx context.Context) error { return nil }

func newTestTypes(t *testing.T) *serialization.TypeRegistry {
	t.Helper()
	types := serialization.NewTypeRegistry()
	require.NoError(t, types.Register("test.auditSignup", func() contracts.Command {
		return &auditSignup{}
	}))
	return types
}

func TestOpenWithEngineValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil engine is a config error", func(t *testing.T) {
		_, err := OpenWithEngine(ctx, nil, nil)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("invalid queue name closes the engine", func(t *testing.T) {
		engine := newFakeEngine()
		_, err := OpenWithEngine(ctx, engine, []QueueConfig{{Name: "bad name", Listeners: 1}})

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, 1, engine.closeCount())
	})

	t.Run("duplicate queue names are rejected", func(t *testing.T) {
		engine := newFakeEngine()
		_, err := OpenWithEngine(ctx, engine, []QueueConfig{
			{Name: "emails", Listeners: 1},
			{Name: "emails", Listeners: 2},
		})

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("negative listener count is rejected", func(t *testing.T) {
		engine := newFakeEngine()
		_, err := OpenWithEngine(ctx, engine, []QueueConfig{{Name: "emails", Listeners: -1}})

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("declare failure aborts and closes the engine", func(t *testing.T) {
		engine := newFakeEngine()
		engine.failDeclare = true
		_, err := OpenWithEngine(ctx, engine, []QueueConfig{{Name: "emails", Listeners: 1}})

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, 1, engine.closeCount())
	})
}

func TestOpenWithEngineProvisioning(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()

	nest, err := OpenWithEngine(ctx, engine, []QueueConfig{
		{Name: "emails", Listeners: 3},
		{Name: "images", Listeners: 2},
	}, WithTypeRegistry(newTestTypes(t)))
	require.NoError(t, err)
	defer nest.Stop()

	assert.Equal(t, []string{"emails", "images"}, engine.declared)
	assert.Len(t, engine.handlers["emails"], 3)
	assert.Len(t, engine.handlers["images"], 2)
	assert.True(t, engine.started)
	assert.Equal(t, []string{"emails", "images"}, nest.Queues())
	assert.Same(t, engine, nest.Engine())
}

func TestNestSend(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T) (*Nest, *fakeEngine) {
		t.Helper()
		engine := newFakeEngine()
		nest, err := OpenWithEngine(ctx, engine,
			[]QueueConfig{{Name: "signups", Listeners: 1}},
			WithTypeRegistry(newTestTypes(t)))
		require.NoError(t, err)
		t.Cleanup(nest.Stop)
		return nest, engine
	}

	t.Run("defaults to a transient mid-priority message", func(t *testing.T) {
		nest, engine := open(t)
		require.NoError(t, nest.Send(ctx, "signups", &auditSignup{Email: "io@example.com"}))

		out := engine.lastPublished(t)
		assert.Equal(t, "signups", out.Queue)
		assert.Equal(t, messaging.NonPersistent, out.DeliveryMode)
		assert.Equal(t, uint8(4), out.Priority)
		assert.Equal(t, time.Duration(0), out.TTL)
	})

	t.Run("send options reach the engine", func(t *testing.T) {
		nest, engine := open(t)
		require.NoError(t, nest.Send(ctx, "signups", &auditSignup{Email: "io@example.com"},
			WithPersistent(true),
			WithPriority(9),
			WithTTL(time.Minute),
		))

		out := engine.lastPublished(t)
		assert.Equal(t, messaging.Persistent, out.DeliveryMode)
		assert.Equal(t, uint8(9), out.Priority)
		assert.Equal(t, time.Minute, out.TTL)
	})

	t.Run("unknown queue fails before any publish", func(t *testing.T) {
		nest, engine := open(t)
		err := nest.Send(ctx, "nonexistent", &auditSignup{Email: "io@example.com"})

		var notFound *QueueNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "nonexistent", notFound.Queue)
		assert.Empty(t, engine.published)
	})

	t.Run("unregistered command type fails validation", func(t *testing.T) {
		nest, engine := open(t)
		err := nest.Send(ctx, "signups", &strayCommand{})

		var invalid *ValidationError
		require.ErrorAs(t, err, &invalid)
		assert.Empty(t, engine.published)
	})

	t.Run("published bodies round-trip through the listener", func(t *testing.T) {
		rootExecutions = make(chan string, 1)
		nest, engine := open(t)
		require.NoError(t, nest.Send(ctx, "signups", &auditSignup{Email: "loop@example.com"}))

		out := engine.lastPublished(t)
		handler := engine.handlers["signups"][0]
		require.NoError(t, handler(ctx, &messaging.Delivery{
			Queue:    out.Queue,
			Body:     out.Body,
			Encoding: out.Encoding,
		}))
		assert.Equal(t, "loop@example.com", <-rootExecutions)
	})
}

func TestNestStop(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	nest, err := OpenWithEngine(ctx, engine,
		[]QueueConfig{{Name: "signups", Listeners: 1}},
		WithTypeRegistry(newTestTypes(t)))
	require.NoError(t, err)

	t.Run("stop is idempotent", func(t *testing.T) {
		nest.Stop()
		nest.Stop()
		assert.Equal(t, 1, engine.closeCount())
	})

	t.Run("send after stop wraps ErrNestClosed", func(t *testing.T) {
		err := nest.Send(ctx, "signups", &auditSignup{Email: "late@example.com"})

		var sendErr *SendError
		require.ErrorAs(t, err, &sendErr)
		assert.ErrorIs(t, err, ErrNestClosed)
	})

	t.Run("inspect after stop fails", func(t *testing.T) {
		_, err := nest.Inspect(ctx, "signups")
		assert.ErrorIs(t, err, ErrNestClosed)
	})
}

func TestNestInspection(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	nest, err := OpenWithEngine(ctx, engine,
		[]QueueConfig{{Name: "signups", Listeners: 2}},
		WithTypeRegistry(newTestTypes(t)))
	require.NoError(t, err)
	defer nest.Stop()

	t.Run("depth reflects the engine's count", func(t *testing.T) {
		require.NoError(t, nest.Send(ctx, "signups", &auditSignup{Email: "a@example.com"}))
		require.NoError(t, nest.Send(ctx, "signups", &auditSignup{Email: "b@example.com"}))

		depth, err := nest.QueueDepth(ctx, "signups")
		require.NoError(t, err)
		assert.Equal(t, 2, depth)

		info, err := nest.Inspect(ctx, "signups")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Slots)
	})

	t.Run("unknown queue is reported as such", func(t *testing.T) {
		_, err := nest.QueueDepth(ctx, "nonexistent")

		var notFound *QueueNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestRegisterCommand(t *testing.T) {
	factory := func() contracts.Command { return &auditSignup{} }

	require.NoError(t, RegisterCommand("nestq.test.rootSignup", factory))
	assert.True(t, serialization.GlobalRegistry().IsRegistered("nestq.test.rootSignup"))

	t.Run("re-registering the same pair is a no-op", func(t *testing.T) {
		assert.NoError(t, RegisterCommand("nestq.test.rootSignup", factory))
	})
}
