// Package consumer runs the bucketed stream consumers. One goroutine
// per (kind, bucket) pair processes deliveries in order, retries via
// broker redelivery and dead-letters messages that exhaust their
// delivery budget.
package consumer

import (
	"OmniHub/entity"
	"OmniHub/internal/config"
	"OmniHub/internal/lib/sl"
	"OmniHub/internal/lib/subject"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// Subscriber opens one durable subscription per (kind, bucket).
type Subscriber interface {
	Subscribe(kind string, bucket int) (<-chan amqp091.Delivery, error)
}

// Conversations is the projection the consumer dispatches into.
type Conversations interface {
	ApplyEvent(ctx context.Context, ev entity.ChannelEvent) (*entity.Message, error)
	ApplyStatus(ctx context.Context, ev entity.ChannelEvent) error
}

// DLQPublisher moves an exhausted delivery to the dead-letter exchange.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, subj string, body []byte, messageID string, headers map[string]string) error
}

// Alerter raises an operator alert when a message is dead-lettered.
type Alerter interface {
	SendMessage(msg string)
}

type Service struct {
	subs    Subscriber
	conv    Conversations
	dlq     DLQPublisher
	alerter Alerter
	log     *slog.Logger

	buckets    int
	maxDeliver int

	// Per-process redelivery counters deciding when to dead-letter.
	// Best-effort only: a restart resets them and a message may see
	// more than maxDeliver deliveries before reaching the DLQ. The
	// correctness mechanism is the idempotent projection, not this map.
	mu      sync.Mutex
	retries map[string]int

	wg sync.WaitGroup
}

func NewService(subs Subscriber, conv Conversations, dlq DLQPublisher, alerter Alerter, conf *config.Config, log *slog.Logger) *Service {
	return &Service{
		subs:       subs,
		conv:       conv,
		dlq:        dlq,
		alerter:    alerter,
		log:        log.With(sl.Module("consumer")),
		buckets:    conf.Rabbit.Buckets,
		maxDeliver: conf.Rabbit.MaxDeliver,
		retries:    make(map[string]int),
	}
}

// Start opens every (kind, bucket) subscription and launches its
// processing loop. All events for one connection hash to one bucket and
// one loop, which is what serializes them.
func (s *Service) Start(ctx context.Context) error {
	for _, kind := range []string{entity.KindReceived, entity.KindStatus} {
		for bucket := 0; bucket < s.buckets; bucket++ {
			deliveries, err := s.subs.Subscribe(kind, bucket)
			if err != nil {
				return fmt.Errorf("subscribe %s bucket %d: %w", kind, bucket, err)
			}
			s.wg.Add(1)
			go s.loop(ctx, kind, bucket, deliveries)
		}
	}
	s.log.Info("consumers started",
		slog.Int("buckets", s.buckets),
		slog.Int("max_deliver", s.maxDeliver),
	)
	return nil
}

// Wait blocks until every processing loop has drained. Call after
// cancelling the start context and before closing the broker.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) loop(ctx context.Context, kind string, bucket int, deliveries <-chan amqp091.Delivery) {
	defer s.wg.Done()
	lg := s.log.With(slog.String("kind", kind), slog.Int("bucket", bucket))

	for {
		select {
		case <-ctx.Done():
			lg.Info("consumer loop stopped")
			return
		case d, ok := <-deliveries:
			if !ok {
				lg.Warn("delivery channel closed")
				return
			}
			s.handle(ctx, lg, d)
		}
	}
}

func (s *Service) handle(ctx context.Context, lg *slog.Logger, d amqp091.Delivery) {
	key := s.retryKey(d)

	if err := s.process(ctx, d); err != nil {
		s.failed(ctx, lg, d, key, err)
		return
	}

	s.clearRetries(key)
	if err := d.Ack(false); err != nil {
		lg.Error("ack failed", sl.Err(err))
	}
}

func (s *Service) process(ctx context.Context, d amqp091.Delivery) error {
	meta, err := subject.Parse(d.RoutingKey)
	if err != nil {
		return err
	}

	var ev entity.ChannelEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}

	// Routing metadata wins over whatever the payload claims.
	ev.Channel = meta.Channel
	ev.CompanyID = meta.CompanyID
	ev.ConnectionID = meta.ConnectionID
	if ev.Kind == "" {
		ev.Kind = meta.Kind
	}

	switch meta.Kind {
	case entity.KindStatus:
		return s.conv.ApplyStatus(ctx, ev)
	default:
		_, err := s.conv.ApplyEvent(ctx, ev)
		return err
	}
}

func (s *Service) failed(ctx context.Context, lg *slog.Logger, d amqp091.Delivery, key string, procErr error) {
	attempts := s.bumpRetries(key)

	if attempts < s.maxDeliver {
		lg.Warn("processing failed, requeueing",
			slog.String("subject", d.RoutingKey),
			slog.Int("attempt", attempts),
			sl.Err(procErr),
		)
		if err := d.Nack(false, true); err != nil {
			lg.Error("nack failed", sl.Err(err))
		}
		return
	}

	// Delivery budget exhausted: park the raw message on the DLQ
	// subject, keep the dedup id for manual replay, and terminate the
	// original delivery so the broker stops redelivering it.
	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		if sv, ok := v.(string); ok {
			headers[k] = sv
		}
	}
	headers["x-last-error"] = procErr.Error()

	dlqSubject := "dlq." + d.RoutingKey
	if err := s.dlq.PublishDLQ(ctx, dlqSubject, d.Body, d.MessageId, headers); err != nil {
		lg.Error("dlq publish failed, requeueing delivery",
			slog.String("subject", d.RoutingKey),
			sl.Err(err),
		)
		if nerr := d.Nack(false, true); nerr != nil {
			lg.Error("nack failed", sl.Err(nerr))
		}
		return
	}

	s.clearRetries(key)
	if err := d.Ack(false); err != nil {
		lg.Error("ack after dlq failed", sl.Err(err))
	}

	lg.Error("message dead-lettered",
		slog.String("subject", d.RoutingKey),
		slog.String("dlq_subject", dlqSubject),
		slog.Int("attempts", attempts),
		sl.Err(procErr),
	)
	if s.alerter != nil {
		s.alerter.SendMessage(fmt.Sprintf(
			"message dead-lettered to %s after %d attempts: %v",
			dlqSubject, attempts, procErr,
		))
	}
}

func (s *Service) retryKey(d amqp091.Delivery) string {
	if d.MessageId != "" {
		return d.MessageId
	}
	// No dedup id on the message; fall back to subject plus body so
	// unrelated messages never share a counter.
	return d.RoutingKey + ":" + string(d.Body)
}

func (s *Service) bumpRetries(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[key]++
	return s.retries[key]
}

func (s *Service) clearRetries(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, key)
}
