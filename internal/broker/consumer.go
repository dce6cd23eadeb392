package broker

import (
	"OmniHub/internal/lib/subject"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"
)

// Subscribe opens a durable subscription for one (kind, bucket) pair.
// The queue name is deterministic so restarts resume the same logical
// consumer where it left off. Deliveries require manual ack.
func (b *Broker) Subscribe(kind string, bucket int) (<-chan amqp091.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq subscription channel: %w", err)
	}

	queueName := fmt.Sprintf("channel-message-%s-b%d", kind, bucket)
	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("rabbitmq declare queue %s: %w", queueName, err)
	}

	pattern := subject.Pattern(kind, bucket)
	if err := ch.QueueBind(queueName, pattern, b.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("rabbitmq bind queue %s to %s: %w", queueName, pattern, err)
	}

	// Bound the number of unacked deliveries in flight per consumer.
	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("rabbitmq qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		queueName, // consumer tag
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("rabbitmq consume %s: %w", queueName, err)
	}

	b.subMu.Lock()
	b.subs = append(b.subs, ch)
	b.subMu.Unlock()

	b.log.Info("subscription opened",
		slog.String("queue", queueName),
		slog.String("pattern", pattern),
	)
	return deliveries, nil
}
