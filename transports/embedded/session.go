package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/glimte/nestq/contracts"
	"github.com/glimte/nestq/messaging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Message headers. Content-Encoding carries the codec's compression flag;
// the delivery-mode and priority headers preserve the producer's settings
// for consumers and operators (this engine stores every message on disk
// and does not reorder by priority).
const (
	headerContentEncoding = "Content-Encoding"
	headerDeliveryMode    = "Nestq-Delivery-Mode"
	headerPriority        = "Nestq-Priority"
	headerTTL             = "Nats-TTL"
)

// minMessageTTL is the server's TTL granularity; shorter expirations are
// rounded up to it.
const minMessageTTL = time.Second

// consumerSlot is one listener slot: a private message iterator over the
// queue's shared durable consumer. Deliveries within a slot are strictly
// sequential.
type consumerSlot struct {
	queue    string
	index    int
	consumer jetstream.Consumer
	handler  messaging.DeliveryHandler
	logger   *slog.Logger
	messages jetstream.MessagesContext
}

// OpenConsumerSession binds handler to a new slot on the queue. Slots are
// wired now but deliver nothing until StartDelivery.
func (e *Engine) OpenConsumerSession(ctx context.Context, queue string, handler messaging.DeliveryHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return contracts.ErrNestClosed
	}
	if e.started {
		return fmt.Errorf("embedded: delivery already started")
	}

	consumer, err := e.jsConsumer.Consumer(ctx, StreamName(queue), consumerName(queue))
	if err != nil {
		return fmt.Errorf("embedded: bind consumer for %q: %w", queue, err)
	}

	e.slots = append(e.slots, &consumerSlot{
		queue:    queue,
		index:    e.slotCount[queue],
		consumer: consumer,
		handler:  handler,
		logger:   e.logger,
	})
	e.slotCount[queue]++
	return nil
}

// StartDelivery opens every wired slot's iterator and starts its delivery
// goroutine. Called once; before it, no slot observes a message.
func (e *Engine) StartDelivery(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return contracts.ErrNestClosed
	}
	if e.started {
		return fmt.Errorf("embedded: delivery already started")
	}

	for _, slot := range e.slots {
		messages, err := slot.consumer.Messages(jetstream.PullMaxMessages(1))
		if err != nil {
			return fmt.Errorf("embedded: start slot %d on %q: %w", slot.index, slot.queue, err)
		}
		slot.messages = messages

		e.wg.Add(1)
		go func(s *consumerSlot) {
			defer e.wg.Done()
			s.run(e.baseCtx)
		}(slot)
	}

	e.started = true
	e.logger.Debug("delivery started", "slots", len(e.slots))
	return nil
}

// run is the slot's delivery loop: next message, hand to listener, ack.
// The ack is unconditional; listener errors were already logged upstream
// and do not cause redelivery.
func (s *consumerSlot) run(ctx context.Context) {
	for {
		msg, err := s.messages.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return
			}
			s.logger.Warn("consumer slot read failed",
				"queue", s.queue,
				"slot", s.index,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
				continue
			}
		}

		delivery := &messaging.Delivery{
			Queue:    s.queue,
			Body:     msg.Data(),
			Encoding: msg.Headers().Get(headerContentEncoding),
		}
		_ = s.handler(ctx, delivery)

		if err := msg.Ack(); err != nil {
			s.logger.Warn("acknowledge failed",
				"queue", s.queue,
				"slot", s.index,
				"error", err,
			)
		}
	}
}

func (s *consumerSlot) stop() {
	if s.messages != nil {
		s.messages.Stop()
	}
}

// producerSession is a lightweight view over the shared producer
// connection; opening one per send is free, and matches the contract
// that every send gets a fresh session.
type producerSession struct {
	js     jetstream.JetStream
	closed bool
}

// OpenProducerSession implements messaging.Engine.
func (e *Engine) OpenProducerSession(ctx context.Context) (messaging.ProducerSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, contracts.ErrNestClosed
	}
	return &producerSession{js: e.jsProducer}, nil
}

// Publish sends one message to the queue's subject. TTL rides the
// server's per-message expiry header; mode and priority ride engine
// headers.
func (s *producerSession) Publish(ctx context.Context, out *messaging.Outbound) error {
	if s.closed {
		return fmt.Errorf("embedded: producer session closed")
	}

	msg := &nats.Msg{
		Subject: SubjectName(out.Queue),
		Data:    out.Body,
		Header:  nats.Header{},
	}
	if out.Encoding != "" {
		msg.Header.Set(headerContentEncoding, out.Encoding)
	}
	msg.Header.Set(headerDeliveryMode, strconv.Itoa(int(out.DeliveryMode)))
	msg.Header.Set(headerPriority, strconv.Itoa(int(out.Priority)))
	if out.TTL > 0 {
		ttl := out.TTL
		if ttl < minMessageTTL {
			ttl = minMessageTTL
		}
		msg.Header.Set(headerTTL, ttl.String())
	}

	if _, err := s.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("embedded: publish to %q: %w", out.Queue, err)
	}
	return nil
}

func (s *producerSession) Close() error {
	s.closed = true
	return nil
}
