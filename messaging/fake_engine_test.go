package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeEngine is an in-memory Engine for unit tests. It records declared
// queues, consumer sessions, and published messages, and enforces the
// same lifecycle rules the real engines do: consumer sessions only before
// StartDelivery, nothing after Close.
type fakeEngine struct {
	mu              sync.Mutex
	declared        []string
	sessions        map[string][]DeliveryHandler
	published       []*Outbound
	started         bool
	closed          bool
	producersOpened int
	producersClosed int

	failDeclare error
	failConsume error
	failStart   error
	failOpen    error
	failPublish error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sessions: make(map[string][]DeliveryHandler)}
}

func (e *fakeEngine) DeclareQueue(ctx context.Context, queue string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failDeclare != nil {
		return e.failDeclare
	}
	for _, q := range e.declared {
		if q == queue {
			return nil
		}
	}
	e.declared = append(e.declared, queue)
	return nil
}

func (e *fakeEngine) OpenConsumerSession(ctx context.Context, queue string, handler DeliveryHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failConsume != nil {
		return e.failConsume
	}
	if e.started {
		return errors.New("fake: delivery already started")
	}
	e.sessions[queue] = append(e.sessions[queue], handler)
	return nil
}

func (e *fakeEngine) StartDelivery(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failStart != nil {
		return e.failStart
	}
	if e.started {
		return errors.New("fake: delivery started twice")
	}
	e.started = true
	return nil
}

func (e *fakeEngine) OpenProducerSession(ctx context.Context) (ProducerSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failOpen != nil {
		return nil, e.failOpen
	}
	if e.closed {
		return nil, errors.New("fake: engine closed")
	}
	e.producersOpened++
	return &fakeProducerSession{engine: e}, nil
}

func (e *fakeEngine) InspectQueue(ctx context.Context, queue string) (QueueInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range e.declared {
		if q != queue {
			continue
		}
		n := 0
		for _, out := range e.published {
			if out.Queue == queue {
				n++
			}
		}
		return QueueInfo{
			Name:     queue,
			Physical: "fake." + queue,
			Messages: n,
			Slots:    len(e.sessions[queue]),
		}, nil
	}
	return QueueInfo{}, fmt.Errorf("fake: queue %q not declared", queue)
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// deliver routes one raw body to the given slot's handler, the way an
// engine session would.
func (e *fakeEngine) deliver(ctx context.Context, queue string, slot int, body []byte, encoding string) error {
	e.mu.Lock()
	handlers := e.sessions[queue]
	e.mu.Unlock()
	if slot >= len(handlers) {
		return fmt.Errorf("fake: queue %q has no slot %d", queue, slot)
	}
	return handlers[slot](ctx, &Delivery{Queue: queue, Body: body, Encoding: encoding})
}

func (e *fakeEngine) publishedTo(queue string) []*Outbound {
	e.mu.Lock()
	defer e.mu.Unlock()
	var outs []*Outbound
	for _, out := range e.published {
		if out.Queue == queue {
			outs = append(outs, out)
		}
	}
	return outs
}

type fakeProducerSession struct {
	engine *fakeEngine
	closed bool
}

func (s *fakeProducerSession) Publish(ctx context.Context, out *Outbound) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.closed {
		return errors.New("fake: session closed")
	}
	if s.engine.failPublish != nil {
		return s.engine.failPublish
	}
	s.engine.published = append(s.engine.published, out)
	return nil
}

func (s *fakeProducerSession) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.closed {
		return errors.New("fake: session closed twice")
	}
	s.closed = true
	s.engine.producersClosed++
	return nil
}
