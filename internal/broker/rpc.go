package broker

import (
	"OmniHub/entity"
	"OmniHub/internal/lib/sl"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Well-known request queues of the external collaborators.
const (
	mediaFetchQueue = "media.fetch"
	fileUploadQueue = "files.upload"
)

// replyToQueue is RabbitMQ's direct reply-to pseudo-queue.
const replyToQueue = "amq.rabbitmq.reply-to"

// RPCClient performs request/reply calls over the broker connection.
// Every call is bounded by the configured timeout; a stuck collaborator
// never blocks a consumer loop indefinitely.
type RPCClient struct {
	broker  *Broker
	timeout time.Duration
	log     *slog.Logger
}

func NewRPCClient(b *Broker, timeout time.Duration, log *slog.Logger) *RPCClient {
	return &RPCClient{
		broker:  b,
		timeout: timeout,
		log:     log.With(sl.Module("broker.rpc")),
	}
}

// MediaFetch asks the owning channel service for a media binary.
func (c *RPCClient) MediaFetch(ctx context.Context, req entity.MediaFetchRequest) (*entity.MediaFetchResponse, error) {
	var resp entity.MediaFetchResponse
	if err := c.call(ctx, mediaFetchQueue, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FileUpload stores a binary in the central file store.
func (c *RPCClient) FileUpload(ctx context.Context, req entity.FileUploadRequest) (*entity.FileUploadResponse, error) {
	var resp entity.FileUploadResponse
	if err := c.call(ctx, fileUploadQueue, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RPCClient) call(ctx context.Context, queue string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpc marshal request: %w", err)
	}

	ch, err := c.broker.conn.Channel()
	if err != nil {
		return fmt.Errorf("rpc channel: %w", err)
	}
	defer ch.Close()

	// Direct reply-to: consume replies without declaring a queue.
	replies, err := ch.Consume(replyToQueue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rpc consume reply-to: %w", err)
	}

	correlationID := uuid.NewString()
	err = ch.PublishWithContext(ctx,
		"", // default exchange, routed straight to the queue
		queue,
		false,
		false,
		amqp091.Publishing{
			ContentType:   "application/json",
			CorrelationId: correlationID,
			ReplyTo:       replyToQueue,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("rpc publish to %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("rpc call to %s: %w", queue, ctx.Err())
		case delivery, ok := <-replies:
			if !ok {
				return fmt.Errorf("rpc call to %s: reply channel closed", queue)
			}
			if delivery.CorrelationId != correlationID {
				c.log.Debug("discarding stale rpc reply",
					slog.String("queue", queue),
					slog.String("correlation_id", delivery.CorrelationId),
				)
				continue
			}
			if err := json.Unmarshal(delivery.Body, resp); err != nil {
				return fmt.Errorf("rpc decode reply from %s: %w", queue, err)
			}
			return nil
		}
	}
}
