// Package ingest accepts raw channel events exactly once and routes
// them into the pipeline: either straight into the conversation
// projection or through the durable outbox.
package ingest

import (
	"OmniHub/entity"
	"OmniHub/internal/config"
	"OmniHub/internal/lib/sl"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// IdempotencyStore records which raw events were already accepted.
type IdempotencyStore interface {
	RecordWebhookEventIfNew(channel, remoteID, companyID string, raw []byte) (bool, string, error)
	MarkWebhookEvent(id, status string) error
}

// Conversations is the direct processing path.
type Conversations interface {
	ApplyEvent(ctx context.Context, ev entity.ChannelEvent) (*entity.Message, error)
	ApplyStatus(ctx context.Context, ev entity.ChannelEvent) error
}

// Outbox is the asynchronous processing path.
type Outbox interface {
	Enqueue(ev entity.ChannelEvent) (string, error)
}

// Result is what the ingestion caller learns. Processed means the event
// was durably recorded; for the outbox path the projection happens
// later and MessageID refers to the outbox record.
type Result struct {
	MessageID string
	Processed bool
}

type Service struct {
	store     IdempotencyStore
	conv      Conversations
	outbox    Outbox
	useOutbox bool
	validate  *validator.Validate
	log       *slog.Logger
}

func NewService(store IdempotencyStore, conv Conversations, outbox Outbox, conf *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		conv:      conv,
		outbox:    outbox,
		useOutbox: conf.Outbox.Enabled && outbox != nil,
		validate:  validator.New(),
		log:       log.With(sl.Module("ingest")),
	}
}

// Ingest accepts one canonical event. A repeated (channel, remote id,
// company) triple returns entity.ErrDuplicateEvent; everything else is
// recorded for audit and routed. Duplicate detection happens at the
// insert, so concurrent submissions of the same event cannot both win.
func (s *Service) Ingest(ctx context.Context, ev entity.ChannelEvent) (*Result, error) {
	if err := s.validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("invalid channel event: %w", err)
	}
	if ev.Kind == "" {
		ev.Kind = entity.KindReceived
	}
	if ev.RemoteID == "" {
		// Internal notes and synthetic events carry no provider id;
		// give them one so the idempotency record still exists.
		ev.RemoteID = "internal-" + uuid.NewString()
	}

	isNew, recordID, err := s.store.RecordWebhookEventIfNew(ev.Channel, dedupRemoteID(ev), ev.CompanyID, ev.Raw)
	if err != nil {
		return nil, err
	}
	if !isNew {
		s.log.Debug("duplicate event ignored",
			slog.String("channel", ev.Channel),
			slog.String("remote_id", ev.RemoteID),
			slog.String("company_id", ev.CompanyID),
		)
		return nil, entity.ErrDuplicateEvent
	}

	if s.useOutbox {
		return s.viaOutbox(ev, recordID)
	}
	return s.direct(ctx, ev, recordID)
}

// dedupRemoteID is the remote id stored on the idempotency record.
// Providers reuse one message id across its whole status lifecycle
// (sent, then delivered, then read), and that id equals the message
// event's own id. Scoping status records by kind and status lets every
// transition through exactly once while replays of the same transition
// still collide.
func dedupRemoteID(ev entity.ChannelEvent) string {
	if ev.Kind == entity.KindStatus {
		return ev.RemoteID + "#status:" + ev.Status
	}
	return ev.RemoteID
}

func (s *Service) viaOutbox(ev entity.ChannelEvent, recordID string) (*Result, error) {
	outboxID, err := s.outbox.Enqueue(ev)
	if err != nil {
		s.markRecord(recordID, entity.WebhookFailed)
		return nil, err
	}
	s.markRecord(recordID, entity.WebhookProcessed)
	return &Result{MessageID: outboxID, Processed: true}, nil
}

func (s *Service) direct(ctx context.Context, ev entity.ChannelEvent, recordID string) (*Result, error) {
	if ev.Kind == entity.KindStatus {
		if err := s.conv.ApplyStatus(ctx, ev); err != nil {
			s.markRecord(recordID, entity.WebhookFailed)
			return nil, err
		}
		s.markRecord(recordID, entity.WebhookProcessed)
		return &Result{Processed: true}, nil
	}

	msg, err := s.conv.ApplyEvent(ctx, ev)
	if err != nil {
		s.markRecord(recordID, entity.WebhookFailed)
		return nil, err
	}
	s.markRecord(recordID, entity.WebhookProcessed)
	return &Result{MessageID: msg.MessageID, Processed: true}, nil
}

// IngestRaw normalizes a provider webhook body and ingests every event
// it contains. Duplicates inside the batch are skipped, not errors.
func (s *Service) IngestRaw(ctx context.Context, channel, companyID, connectionID string, body []byte) (int, error) {
	events, err := Normalize(channel, companyID, connectionID, body)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, ev := range events {
		if _, err := s.Ingest(ctx, ev); err != nil {
			if errors.Is(err, entity.ErrDuplicateEvent) {
				continue
			}
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

func (s *Service) markRecord(recordID, status string) {
	if recordID == "" {
		return
	}
	if err := s.store.MarkWebhookEvent(recordID, status); err != nil {
		s.log.Error("mark webhook event",
			slog.String("record_id", recordID),
			slog.String("status", status),
			sl.Err(err),
		)
	}
}
