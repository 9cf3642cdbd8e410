package embedded

import (
	"context"
	"fmt"
	"time"

	"github.com/glimte/nestq/messaging"
	"github.com/nats-io/nats.go/jetstream"
)

// ackWait bounds how long a delivered message may sit unacknowledged.
// Acknowledgment happens right after the listener returns, so this only
// matters for listeners that run very long: past it the broker assumes a
// crash and redelivers.
const ackWait = 5 * time.Minute

// DeclareQueue backs a logical queue with a durable file-backed
// work-queue stream and the durable consumer its listener slots share.
// Redeclaring an existing queue is a no-op.
func (e *Engine) DeclareQueue(ctx context.Context, queue string) error {
	_, err := e.jsConsumer.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName(queue),
		Description: "nestq queue " + queue,
		Subjects:    []string{SubjectName(queue)},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		AllowMsgTTL: true,
	})
	if err != nil {
		return fmt.Errorf("embedded: declare stream for %q: %w", queue, err)
	}

	_, err = e.jsConsumer.CreateOrUpdateConsumer(ctx, StreamName(queue), jetstream.ConsumerConfig{
		Durable:   consumerName(queue),
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   ackWait,
	})
	if err != nil {
		return fmt.Errorf("embedded: declare consumer for %q: %w", queue, err)
	}

	e.logger.Debug("queue declared",
		"queue", queue,
		"stream", StreamName(queue),
	)
	return nil
}

// InspectQueue reports the queue's backlog and this process's slot count.
func (e *Engine) InspectQueue(ctx context.Context, queue string) (messaging.QueueInfo, error) {
	stream, err := e.jsProducer.Stream(ctx, StreamName(queue))
	if err != nil {
		return messaging.QueueInfo{}, fmt.Errorf("embedded: inspect %q: %w", queue, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return messaging.QueueInfo{}, fmt.Errorf("embedded: inspect %q: %w", queue, err)
	}

	e.mu.Lock()
	slots := e.slotCount[queue]
	e.mu.Unlock()

	return messaging.QueueInfo{
		Name:     queue,
		Physical: StreamName(queue),
		Messages: int(info.State.Msgs),
		Slots:    slots,
	}, nil
}
