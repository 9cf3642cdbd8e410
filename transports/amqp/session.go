package amqp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/nestq/contracts"
	"github.com/glimte/nestq/messaging"
)

const contentTypeJSON = "application/json"

// consumerBinding is one listener slot's channel on the shared consumer
// connection. Basic.Consume is deferred until StartDelivery so a wired
// slot cannot observe a message while provisioning is still under way.
type consumerBinding struct {
	queue   string
	slot    int
	handler messaging.DeliveryHandler
	ch      *amqp091.Channel
}

// OpenConsumerSession implements messaging.Engine. Each slot gets its own
// channel with a prefetch of one, which keeps deliveries sequential per
// slot while slots on the same queue compete for messages.
func (e *Engine) OpenConsumerSession(ctx context.Context, queue string, handler messaging.DeliveryHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return contracts.ErrNestClosed
	}
	if e.started {
		return fmt.Errorf("amqp: delivery already started")
	}

	ch, err := e.consumer.channel()
	if err != nil {
		return fmt.Errorf("amqp: open consumer session on %q: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqp: open consumer session on %q: %w", queue, err)
	}

	slot := e.slotCount[queue]
	e.slotCount[queue] = slot + 1
	e.bindings = append(e.bindings, &consumerBinding{
		queue:   queue,
		slot:    slot,
		handler: handler,
		ch:      ch,
	})
	return nil
}

// StartDelivery implements messaging.Engine.
func (e *Engine) StartDelivery(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return contracts.ErrNestClosed
	}
	if e.started {
		return fmt.Errorf("amqp: delivery already started")
	}

	for _, b := range e.bindings {
		if err := e.consumeLocked(b); err != nil {
			return fmt.Errorf("amqp: start slot %d on %q: %w", b.slot, b.queue, err)
		}
	}
	e.started = true

	e.logger.Debug("delivery started", "slots", len(e.bindings))
	return nil
}

func (e *Engine) consumeLocked(b *consumerBinding) error {
	deliveries, err := b.ch.Consume(QueueName(b.queue), consumerTag(b.queue, b.slot), false, false, false, false, nil)
	if err != nil {
		return err
	}
	e.wg.Add(1)
	go e.runSlot(b.queue, b.slot, b.handler, deliveries)
	return nil
}

// runSlot drains one slot's deliveries. The message is acknowledged after
// the handler returns, whatever the handler returned. A slot whose
// channel dies simply ends; resumeDelivery re-creates it once the
// connection is back.
func (e *Engine) runSlot(queue string, slot int, handler messaging.DeliveryHandler, deliveries <-chan amqp091.Delivery) {
	defer e.wg.Done()
	logger := e.logger.With("queue", queue, "slot", slot)

	for {
		select {
		case <-e.baseCtx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			_ = handler(e.baseCtx, &messaging.Delivery{
				Queue:    queue,
				Body:     d.Body,
				Encoding: d.ContentEncoding,
			})
			if err := d.Ack(false); err != nil {
				logger.Warn("acknowledge failed", "error", err)
			}
		}
	}
}

// producerSession is one short-lived channel on the shared producer
// connection. Every send opens one, publishes, and closes it again.
type producerSession struct {
	ch *amqp091.Channel
}

// OpenProducerSession implements messaging.Engine.
func (e *Engine) OpenProducerSession(ctx context.Context) (messaging.ProducerSession, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return nil, contracts.ErrNestClosed
	}
	ch, err := e.producer.channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: open producer session: %w", err)
	}
	return &producerSession{ch: ch}, nil
}

// Publish sends one message through the default exchange straight to the
// queue. Delivery mode, priority and expiry map onto their native AMQP
// fields, so the broker enforces all three.
func (s *producerSession) Publish(ctx context.Context, out *messaging.Outbound) error {
	if err := s.ch.PublishWithContext(ctx, "", QueueName(out.Queue), false, false, buildPublishing(out)); err != nil {
		return fmt.Errorf("amqp: publish to %q: %w", out.Queue, err)
	}
	return nil
}

func (s *producerSession) Close() error {
	return s.ch.Close()
}

func buildPublishing(out *messaging.Outbound) amqp091.Publishing {
	pub := amqp091.Publishing{
		ContentType:     contentTypeJSON,
		ContentEncoding: out.Encoding,
		DeliveryMode:    uint8(out.DeliveryMode),
		Priority:        out.Priority,
		Timestamp:       time.Now().UTC(),
		Body:            out.Body,
	}
	if out.TTL > 0 {
		pub.Expiration = strconv.FormatInt(out.TTL.Milliseconds(), 10)
	}
	return pub
}
