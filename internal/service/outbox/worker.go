// Package outbox drains durably recorded publish intents to the broker
// with retry, exponential backoff and a terminal failed state.
package outbox

import (
	"OmniHub/entity"
	"OmniHub/internal/config"
	"OmniHub/internal/lib/sl"
	"OmniHub/internal/lib/subject"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the outbox collection surface.
type Store interface {
	EnqueueOutbox(ev entity.OutboxEvent) (string, error)
	DueOutboxEvents(now time.Time, limit int) ([]entity.OutboxEvent, error)
	MarkOutboxPublished(id primitive.ObjectID, subject string) error
	RescheduleOutbox(id primitive.ObjectID, retryCount int, nextAttemptAt time.Time, errMsg string) error
	MarkOutboxFailed(id primitive.ObjectID, errMsg string) error
}

// Publisher sends a payload to the stream.
type Publisher interface {
	Publish(ctx context.Context, subj string, body []byte, messageID string, headers map[string]string) error
}

// Alerter raises an operator alert for terminal failures.
type Alerter interface {
	SendMessage(msg string)
}

type Worker struct {
	store   Store
	pub     Publisher
	alerter Alerter
	log     *slog.Logger

	interval   time.Duration
	batchSize  int
	maxRetries int
	baseDelay  time.Duration
	factor     int
	maxDelay   time.Duration
	buckets    int
}

func NewWorker(store Store, pub Publisher, alerter Alerter, conf *config.Config, log *slog.Logger) *Worker {
	return &Worker{
		store:      store,
		pub:        pub,
		alerter:    alerter,
		log:        log.With(sl.Module("outbox")),
		interval:   time.Duration(conf.Outbox.IntervalMS) * time.Millisecond,
		batchSize:  conf.Outbox.BatchSize,
		maxRetries: conf.Outbox.MaxRetries,
		baseDelay:  time.Duration(conf.Outbox.BaseDelayMS) * time.Millisecond,
		factor:     conf.Outbox.BackoffFactor,
		maxDelay:   time.Duration(conf.Outbox.MaxDelayMS) * time.Millisecond,
		buckets:    conf.Rabbit.Buckets,
	}
}

// Enqueue durably records the intent to publish an event. The call
// returns as soon as the record is written; publishing is asynchronous.
func (w *Worker) Enqueue(ev entity.ChannelEvent) (string, error) {
	kind := ev.Kind
	if kind == "" {
		kind = entity.KindReceived
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal outbox payload: %w", err)
	}

	id, err := w.store.EnqueueOutbox(entity.OutboxEvent{
		CompanyID:    ev.CompanyID,
		Channel:      ev.Channel,
		ConnectionID: ev.ConnectionID,
		RemoteID:     ev.RemoteID,
		Kind:         kind,
		Payload:      payload,
	})
	if err != nil {
		return "", err
	}

	w.log.Debug("outbox event enqueued",
		slog.String("outbox_id", id),
		slog.String("kind", kind),
		slog.String("connection_id", ev.ConnectionID),
	)
	return id, nil
}

// Run drains the outbox on a fixed interval until the context ends.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("outbox worker started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("outbox worker stopped")
			return
		case now := <-ticker.C:
			if err := w.ProcessBatchOnce(ctx, now.UTC()); err != nil {
				w.log.Error("outbox batch failed", sl.Err(err))
			}
		}
	}
}

// ProcessBatchOnce publishes every due pending record once. Publish
// failures reschedule the record with exponential backoff; after
// maxRetries the record is marked failed and an operator is alerted.
// No cross-instance lock is taken: replicas may race on the same
// record, which is safe because the broker dedup id plus the idempotent
// consumer collapse double publishes.
func (w *Worker) ProcessBatchOnce(ctx context.Context, now time.Time) error {
	due, err := w.store.DueOutboxEvents(now, w.batchSize)
	if err != nil {
		return err
	}

	for _, ev := range due {
		w.processOne(ctx, ev, now)
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, ev entity.OutboxEvent, now time.Time) {
	subj := ev.Subject
	if subj == "" {
		bucket := subject.Bucket(ev.ConnectionID, w.buckets)
		subj = subject.Build(ev.Channel, ev.Kind, ev.CompanyID, bucket, ev.ConnectionID)
	}
	dedupID := subject.DedupID(ev.CompanyID, ev.ConnectionID, ev.RemoteID)

	err := w.pub.Publish(ctx, subj, ev.Payload, dedupID, ev.Headers)
	if err == nil {
		if err := w.store.MarkOutboxPublished(ev.ID, subj); err != nil {
			w.log.Error("mark outbox published", slog.String("outbox_id", ev.ID.Hex()), sl.Err(err))
		}
		return
	}

	retryCount := ev.RetryCount + 1
	if retryCount >= w.maxRetries {
		if merr := w.store.MarkOutboxFailed(ev.ID, err.Error()); merr != nil {
			w.log.Error("mark outbox failed", slog.String("outbox_id", ev.ID.Hex()), sl.Err(merr))
			return
		}
		w.log.Error("outbox event exhausted retries",
			slog.String("outbox_id", ev.ID.Hex()),
			slog.String("subject", subj),
			sl.Err(err),
		)
		if w.alerter != nil {
			w.alerter.SendMessage(fmt.Sprintf(
				"outbox event %s failed terminally after %d attempts: %v",
				ev.ID.Hex(), retryCount, err,
			))
		}
		return
	}

	next := now.Add(Backoff(retryCount, w.baseDelay, w.factor, w.maxDelay))
	if rerr := w.store.RescheduleOutbox(ev.ID, retryCount, next, err.Error()); rerr != nil {
		w.log.Error("reschedule outbox", slog.String("outbox_id", ev.ID.Hex()), sl.Err(rerr))
		return
	}
	w.log.Warn("outbox publish failed, rescheduled",
		slog.String("outbox_id", ev.ID.Hex()),
		slog.Int("retry_count", retryCount),
		slog.Time("next_attempt_at", next),
		sl.Err(err),
	)
}

// Backoff returns base * factor^retry, hard-capped at max. The delay
// never decreases as retry grows, so next_attempt_at is monotonically
// non-decreasing across retries of one record.
func Backoff(retry int, base time.Duration, factor int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retry; i++ {
		delay *= time.Duration(factor)
		if delay >= max || delay < 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
