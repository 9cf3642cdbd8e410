package amqp

import (
	"context"
	"fmt"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/nestq/messaging"
)

const queuePrefix = "nestq."

// QueueName maps a logical queue name onto the broker queue the engine
// declares for it.
func QueueName(queue string) string {
	return queuePrefix + queue
}

func consumerTag(queue string, slot int) string {
	return fmt.Sprintf("nestq.%s.slot%d", queue, slot)
}

// DeclareQueue implements messaging.Engine. Queues are durable and carry
// the full 0-9 priority range; redeclaring one is a no-op.
func (e *Engine) DeclareQueue(ctx context.Context, queue string) error {
	ch, err := e.producer.channel()
	if err != nil {
		return fmt.Errorf("amqp: declare queue %q: %w", queue, err)
	}
	defer ch.Close()

	args := amqp091.Table{"x-max-priority": int32(messaging.MaxPriority)}
	if _, err := ch.QueueDeclare(QueueName(queue), true, false, false, false, args); err != nil {
		return fmt.Errorf("amqp: declare queue %q: %w", queue, err)
	}

	e.logger.Debug("queue declared",
		"queue", queue,
		"physical", QueueName(queue))
	return nil
}

// InspectQueue implements messaging.Engine. The passive declare fails
// when the queue does not exist on the broker.
func (e *Engine) InspectQueue(ctx context.Context, queue string) (messaging.QueueInfo, error) {
	ch, err := e.producer.channel()
	if err != nil {
		return messaging.QueueInfo{}, fmt.Errorf("amqp: inspect %q: %w", queue, err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(QueueName(queue), true, false, false, false, nil)
	if err != nil {
		return messaging.QueueInfo{}, fmt.Errorf("amqp: inspect %q: %w", queue, err)
	}

	e.mu.Lock()
	slots := e.slotCount[queue]
	e.mu.Unlock()

	return messaging.QueueInfo{
		Name:     queue,
		Physical: q.Name,
		Messages: q.Messages,
		Slots:    slots,
	}, nil
}
