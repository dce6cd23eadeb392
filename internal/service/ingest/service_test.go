package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"OmniHub/entity"
	"OmniHub/internal/config"
)

type fakeStore struct {
	seen   map[string]bool
	marks  map[string]string
	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		seen:  make(map[string]bool),
		marks: make(map[string]string),
	}
}

func (f *fakeStore) RecordWebhookEventIfNew(channel, remoteID, companyID string, raw []byte) (bool, string, error) {
	key := channel + ":" + remoteID + ":" + companyID
	if f.seen[key] {
		return false, "", nil
	}
	f.seen[key] = true
	f.nextID++
	return true, fmt.Sprintf("rec-%d", f.nextID), nil
}

func (f *fakeStore) MarkWebhookEvent(id, status string) error {
	f.marks[id] = status
	return nil
}

type fakeConv struct {
	events   []entity.ChannelEvent
	statuses []entity.ChannelEvent
	applyErr error
}

func (f *fakeConv) ApplyEvent(ctx context.Context, ev entity.ChannelEvent) (*entity.Message, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.events = append(f.events, ev)
	return &entity.Message{MessageID: "msg-1"}, nil
}

func (f *fakeConv) ApplyStatus(ctx context.Context, ev entity.ChannelEvent) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.statuses = append(f.statuses, ev)
	return nil
}

type fakeOutbox struct {
	enqueued []entity.ChannelEvent
	err      error
}

func (f *fakeOutbox) Enqueue(ev entity.ChannelEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, ev)
	return "outbox-1", nil
}

func ingestConfig(outboxEnabled bool) *config.Config {
	conf := &config.Config{}
	conf.Outbox.Enabled = outboxEnabled
	return conf
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validEvent() entity.ChannelEvent {
	return entity.ChannelEvent{
		Channel:      entity.ChannelWhatsApp,
		Direction:    entity.DirectionInbound,
		CompanyID:    "acme",
		ConnectionID: "conn-1",
		SenderID:     "491700000001",
		RemoteID:     "wamid.1",
		Type:         entity.TypeText,
		Body:         "hello",
	}
}

func TestIngestDirectPath(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	result, err := s.Ingest(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.Processed {
		t.Error("result not marked processed")
	}
	if result.MessageID != "msg-1" {
		t.Errorf("message id = %q, want msg-1", result.MessageID)
	}
	if len(conv.events) != 1 {
		t.Fatalf("applied %d events, want 1", len(conv.events))
	}
	if store.marks["rec-1"] != entity.WebhookProcessed {
		t.Errorf("record status = %q, want %q", store.marks["rec-1"], entity.WebhookProcessed)
	}
}

func TestIngestRejectsDuplicate(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	if _, err := s.Ingest(context.Background(), validEvent()); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	_, err := s.Ingest(context.Background(), validEvent())
	if !errors.Is(err, entity.ErrDuplicateEvent) {
		t.Fatalf("got %v, want ErrDuplicateEvent", err)
	}
	if len(conv.events) != 1 {
		t.Errorf("duplicate reached the projection")
	}
}

func TestIngestOutboxPath(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	outbox := &fakeOutbox{}
	s := NewService(store, conv, outbox, ingestConfig(true), testLogger())

	result, err := s.Ingest(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(outbox.enqueued) != 1 {
		t.Fatalf("enqueued %d events, want 1", len(outbox.enqueued))
	}
	if len(conv.events) != 0 {
		t.Error("outbox path also hit the projection directly")
	}
	if result.MessageID != "outbox-1" {
		t.Errorf("message id = %q, want outbox record id", result.MessageID)
	}
}

func TestIngestStatusKindDispatch(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	ev := validEvent()
	ev.Kind = entity.KindStatus
	ev.Status = entity.StatusDelivered
	if _, err := s.Ingest(context.Background(), ev); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(conv.statuses) != 1 || len(conv.events) != 0 {
		t.Errorf("status event misrouted: %d statuses, %d events", len(conv.statuses), len(conv.events))
	}
}

func TestIngestAcceptsFullStatusProgression(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	for _, status := range []string{entity.StatusSent, entity.StatusDelivered, entity.StatusRead} {
		ev := validEvent()
		ev.Kind = entity.KindStatus
		ev.Status = status
		if _, err := s.Ingest(context.Background(), ev); err != nil {
			t.Fatalf("Ingest status %q: %v", status, err)
		}
	}

	if len(conv.statuses) != 3 {
		t.Fatalf("projection saw %d status events, want 3", len(conv.statuses))
	}
}

func TestIngestStatusAfterMessageWithSameRemoteID(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	// WhatsApp status callbacks carry the message's own wamid.
	if _, err := s.Ingest(context.Background(), validEvent()); err != nil {
		t.Fatalf("Ingest message: %v", err)
	}

	ev := validEvent()
	ev.Kind = entity.KindStatus
	ev.Status = entity.StatusDelivered
	if _, err := s.Ingest(context.Background(), ev); err != nil {
		t.Fatalf("Ingest status for same remote id: %v", err)
	}
	if len(conv.statuses) != 1 {
		t.Errorf("projection saw %d status events, want 1", len(conv.statuses))
	}
}

func TestIngestRejectsReplayedStatusTransition(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	ev := validEvent()
	ev.Kind = entity.KindStatus
	ev.Status = entity.StatusDelivered
	if _, err := s.Ingest(context.Background(), ev); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if _, err := s.Ingest(context.Background(), ev); !errors.Is(err, entity.ErrDuplicateEvent) {
		t.Fatalf("got %v, want ErrDuplicateEvent for replayed transition", err)
	}
	if len(conv.statuses) != 1 {
		t.Errorf("replayed transition reached the projection")
	}
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	s := NewService(newFakeStore(), &fakeConv{}, nil, ingestConfig(false), testLogger())

	ev := validEvent()
	ev.CompanyID = ""
	if _, err := s.Ingest(context.Background(), ev); err == nil {
		t.Fatal("expected validation error for missing company id")
	}

	ev = validEvent()
	ev.Direction = "sideways"
	if _, err := s.Ingest(context.Background(), ev); err == nil {
		t.Fatal("expected validation error for bad direction")
	}
}

func TestIngestGeneratesRemoteIDForInternalEvents(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	ev := validEvent()
	ev.RemoteID = ""
	ev.Direction = entity.DirectionInternal
	if _, err := s.Ingest(context.Background(), ev); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if conv.events[0].RemoteID == "" {
		t.Error("internal event got no synthetic remote id")
	}
}

func TestIngestMarksFailedOnProjectionError(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{applyErr: fmt.Errorf("projection down")}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	if _, err := s.Ingest(context.Background(), validEvent()); err == nil {
		t.Fatal("expected projection error")
	}
	if store.marks["rec-1"] != entity.WebhookFailed {
		t.Errorf("record status = %q, want %q", store.marks["rec-1"], entity.WebhookFailed)
	}
}

func TestIngestRawSkipsDuplicatesInsideBatch(t *testing.T) {
	store := newFakeStore()
	conv := &fakeConv{}
	s := NewService(store, conv, nil, ingestConfig(false), testLogger())

	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "wb-1", "changes": [{"field": "messages", "value": {
			"metadata": {"phone_number_id": "conn-1"},
			"messages": [
				{"from": "491700000001", "id": "wamid.1", "timestamp": "1756700000", "type": "text", "text": {"body": "hi"}},
				{"from": "491700000001", "id": "wamid.1", "timestamp": "1756700000", "type": "text", "text": {"body": "hi"}}
			]
		}}]}]
	}`)

	accepted, err := s.IngestRaw(context.Background(), entity.ChannelWhatsApp, "acme", "", body)
	if err != nil {
		t.Fatalf("IngestRaw: %v", err)
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, want 1 (duplicate skipped)", accepted)
	}
}
