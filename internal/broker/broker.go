// Package broker wraps the RabbitMQ connection used as the streaming
// backbone. Stream subjects are routing keys on a durable topic
// exchange; dead letters go to a second topic exchange with a catch-all
// queue so nothing is silently dropped.
package broker

import (
	"OmniHub/internal/config"
	"OmniHub/internal/lib/sl"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

const dlqQueue = "channel-message-dlq"

type Broker struct {
	conn        *amqp091.Connection
	ch          *amqp091.Channel
	exchange    string
	dlqExchange string
	prefetch    int
	log         *slog.Logger

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex

	subMu sync.Mutex
	subs  []*amqp091.Channel
}

// Connect dials the broker and declares both topic exchanges plus the
// dead-letter catch-all queue.
func Connect(conf *config.Config, log *slog.Logger) (*Broker, error) {
	conn, err := amqp091.Dial(conf.Rabbit.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	b := &Broker{
		conn:        conn,
		ch:          ch,
		exchange:    conf.Rabbit.Exchange,
		dlqExchange: conf.Rabbit.DLQExchange,
		prefetch:    conf.Rabbit.Prefetch,
		log:         log.With(sl.Module("broker")),
	}

	for _, exchange := range []string{b.exchange, b.dlqExchange} {
		if err := ch.ExchangeDeclare(
			exchange,
			"topic",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			b.Close()
			return nil, fmt.Errorf("rabbitmq declare exchange %s: %w", exchange, err)
		}
	}

	if _, err := ch.QueueDeclare(dlqQueue, true, false, false, false, nil); err != nil {
		b.Close()
		return nil, fmt.Errorf("rabbitmq declare dlq queue: %w", err)
	}
	if err := ch.QueueBind(dlqQueue, "dlq.#", b.dlqExchange, false, nil); err != nil {
		b.Close()
		return nil, fmt.Errorf("rabbitmq bind dlq queue: %w", err)
	}

	b.log.Info("broker connected",
		slog.String("exchange", b.exchange),
		slog.String("dlq_exchange", b.dlqExchange),
	)
	return b, nil
}

// Publish sends a payload to the stream exchange. messageID carries the
// broker-level dedup id so a republished record does not create
// duplicate effects downstream.
func (b *Broker) Publish(ctx context.Context, subject string, body []byte, messageID string, headers map[string]string) error {
	return b.publish(ctx, b.exchange, subject, body, messageID, headers)
}

// PublishDLQ moves an exhausted delivery to the dead-letter exchange,
// keeping the original dedup id for manual replay.
func (b *Broker) PublishDLQ(ctx context.Context, subject string, body []byte, messageID string, headers map[string]string) error {
	return b.publish(ctx, b.dlqExchange, subject, body, messageID, headers)
}

func (b *Broker) publish(ctx context.Context, exchange, subject string, body []byte, messageID string, headers map[string]string) error {
	table := amqp091.Table{}
	for k, v := range headers {
		table[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.ch.PublishWithContext(ctx,
		exchange,
		subject,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    messageID,
			Headers:      table,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish to %s: %w", subject, err)
	}
	return nil
}

// Close cancels every subscription channel and closes the connection.
func (b *Broker) Close() {
	b.subMu.Lock()
	for _, ch := range b.subs {
		_ = ch.Close()
	}
	b.subs = nil
	b.subMu.Unlock()

	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
}
