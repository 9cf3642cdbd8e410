package messaging

import (
	"context"
	"time"
)

// DeliveryMode controls whether a message survives a broker restart.
// The values are wire constants shared with the AMQP transport.
type DeliveryMode uint8

const (
	// NonPersistent messages may be lost on broker restart.
	NonPersistent DeliveryMode = 1
	// Persistent messages are written durably and survive restart.
	Persistent DeliveryMode = 2
)

func (m DeliveryMode) String() string {
	switch m {
	case NonPersistent:
		return "non-persistent"
	case Persistent:
		return "persistent"
	default:
		return "invalid"
	}
}

// Valid reports whether m is one of the two defined modes.
func (m DeliveryMode) Valid() bool {
	return m == NonPersistent || m == Persistent
}

// Send defaults. A send that sets nothing gets a transient message at
// mid-band priority that never expires.
const (
	DefaultDeliveryMode = NonPersistent
	DefaultPriority     = uint8(4)
	MaxPriority         = uint8(9)
)

// Delivery is one inbound message as handed to a listener slot.
type Delivery struct {
	Queue    string // logical queue name
	Body     []byte
	Encoding string // content encoding of Body; "" means plain JSON
}

// Outbound is one message ready to publish. Queue is the logical name;
// each engine derives its own physical naming from it.
type Outbound struct {
	Queue        string
	Body         []byte
	Encoding     string
	DeliveryMode DeliveryMode
	Priority     uint8
	TTL          time.Duration // 0 means the message never expires
}

// QueueInfo is a point-in-time snapshot of one declared queue.
type QueueInfo struct {
	Name     string // logical name
	Physical string // engine-level name
	Messages int    // messages currently queued
	Slots    int    // listener sessions bound by this process
}

// DeliveryHandler consumes one delivery. Engines invoke it sequentially
// within a consumer session and acknowledge the message when it returns,
// regardless of the returned error.
type DeliveryHandler func(ctx context.Context, d *Delivery) error

// ProducerSession is a short-lived publishing context carved from the
// engine's producer connection. Sessions are opened fresh for every send
// and must be closed by the caller.
type ProducerSession interface {
	Publish(ctx context.Context, out *Outbound) error
	Close() error
}

// Engine abstracts the broker. Implementations own exactly two broker
// connections: consumer sessions share one, producer sessions the other.
//
// The lifecycle is: DeclareQueue for every configured queue, then
// OpenConsumerSession for every listener slot, then StartDelivery exactly
// once. No handler runs before StartDelivery, so no slot can observe a
// message while later slots are still being wired.
type Engine interface {
	// DeclareQueue durably declares the queue backing a logical name.
	// Declaring an existing queue is a no-op.
	DeclareQueue(ctx context.Context, queue string) error

	// OpenConsumerSession binds handler to one new consumer session on the
	// queue. Deliveries within the session are sequential.
	OpenConsumerSession(ctx context.Context, queue string, handler DeliveryHandler) error

	// StartDelivery releases deliveries to every consumer session opened so
	// far. Called once, after all sessions are wired.
	StartDelivery(ctx context.Context) error

	// OpenProducerSession opens a fresh short-lived publishing session.
	OpenProducerSession(ctx context.Context) (ProducerSession, error)

	// InspectQueue reports the queue's current state.
	InspectQueue(ctx context.Context, queue string) (QueueInfo, error)

	// Close tears the engine down best-effort: consumer connection first,
	// then producer connection, then whatever broker state the engine owns.
	// Every step is attempted even when an earlier one fails.
	Close() error
}
