package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"OmniHub/entity"
	"OmniHub/internal/config"
	"OmniHub/internal/lib/subject"

	"github.com/rabbitmq/amqp091-go"
)

type fakeAcker struct {
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

type fakeConversations struct {
	applyErr  error
	events    []entity.ChannelEvent
	statuses  []entity.ChannelEvent
	statusErr error
}

func (f *fakeConversations) ApplyEvent(ctx context.Context, ev entity.ChannelEvent) (*entity.Message, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.events = append(f.events, ev)
	return &entity.Message{MessageID: "m-1"}, nil
}

func (f *fakeConversations) ApplyStatus(ctx context.Context, ev entity.ChannelEvent) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, ev)
	return nil
}

type fakeDLQ struct {
	err      error
	subjects []string
	ids      []string
	headers  []map[string]string
}

func (f *fakeDLQ) PublishDLQ(ctx context.Context, subj string, body []byte, messageID string, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.ids = append(f.ids, messageID)
	f.headers = append(f.headers, headers)
	return nil
}

type noAlert struct{}

func (noAlert) SendMessage(string) {}

func consumerConfig() *config.Config {
	conf := &config.Config{}
	conf.Rabbit.Buckets = 8
	conf.Rabbit.MaxDeliver = 5
	return conf
}

func testService(conv Conversations, dlq DLQPublisher) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(nil, conv, dlq, noAlert{}, consumerConfig(), log)
}

func delivery(acker *fakeAcker, kind string) amqp091.Delivery {
	ev := entity.ChannelEvent{
		Channel:      entity.ChannelWhatsApp,
		Kind:         kind,
		Direction:    entity.DirectionInbound,
		CompanyID:    "acme",
		ConnectionID: "conn-1",
		SenderID:     "491700000001",
		RemoteID:     "wamid.1",
		Type:         entity.TypeText,
		Body:         "hello",
		Status:       entity.StatusDelivered,
	}
	body, _ := json.Marshal(ev)
	bucket := subject.Bucket(ev.ConnectionID, 8)

	return amqp091.Delivery{
		Acknowledger: acker,
		RoutingKey:   subject.Build(ev.Channel, kind, ev.CompanyID, bucket, ev.ConnectionID),
		MessageId:    "acme:conn-1:wamid.1",
		Body:         body,
	}
}

func TestHandleAcksOnSuccess(t *testing.T) {
	conv := &fakeConversations{}
	acker := &fakeAcker{}
	s := testService(conv, &fakeDLQ{})

	s.handle(context.Background(), s.log, delivery(acker, entity.KindReceived))

	if acker.acks != 1 {
		t.Errorf("acks = %d, want 1", acker.acks)
	}
	if acker.nacks != 0 {
		t.Errorf("nacks = %d, want 0", acker.nacks)
	}
	if len(conv.events) != 1 {
		t.Fatalf("applied %d events, want 1", len(conv.events))
	}
	if conv.events[0].CompanyID != "acme" || conv.events[0].ConnectionID != "conn-1" {
		t.Errorf("routing metadata not applied: %+v", conv.events[0])
	}
}

func TestHandleDispatchesStatusKind(t *testing.T) {
	conv := &fakeConversations{}
	acker := &fakeAcker{}
	s := testService(conv, &fakeDLQ{})

	s.handle(context.Background(), s.log, delivery(acker, entity.KindStatus))

	if len(conv.statuses) != 1 {
		t.Fatalf("applied %d statuses, want 1", len(conv.statuses))
	}
	if len(conv.events) != 0 {
		t.Errorf("status delivery reached ApplyEvent")
	}
	if acker.acks != 1 {
		t.Errorf("acks = %d, want 1", acker.acks)
	}
}

func TestHandleRequeuesBelowDeliveryBudget(t *testing.T) {
	conv := &fakeConversations{applyErr: fmt.Errorf("projection down")}
	dlq := &fakeDLQ{}
	s := testService(conv, dlq)

	for attempt := 1; attempt < 5; attempt++ {
		acker := &fakeAcker{}
		s.handle(context.Background(), s.log, delivery(acker, entity.KindReceived))

		if acker.nacks != 1 {
			t.Fatalf("attempt %d: nacks = %d, want 1", attempt, acker.nacks)
		}
		if !acker.requeue {
			t.Fatalf("attempt %d: delivery not requeued", attempt)
		}
		if acker.acks != 0 {
			t.Fatalf("attempt %d: delivery acked while failing", attempt)
		}
	}
	if len(dlq.subjects) != 0 {
		t.Errorf("dead-lettered before exhausting delivery budget")
	}
}

func TestHandleDeadLettersAtDeliveryBudget(t *testing.T) {
	conv := &fakeConversations{applyErr: fmt.Errorf("projection down")}
	dlq := &fakeDLQ{}
	s := testService(conv, dlq)

	var last *fakeAcker
	for attempt := 1; attempt <= 5; attempt++ {
		last = &fakeAcker{}
		s.handle(context.Background(), s.log, delivery(last, entity.KindReceived))
	}

	if len(dlq.subjects) != 1 {
		t.Fatalf("dead-lettered %d times, want exactly 1", len(dlq.subjects))
	}
	d := delivery(&fakeAcker{}, entity.KindReceived)
	if want := "dlq." + d.RoutingKey; dlq.subjects[0] != want {
		t.Errorf("dlq subject = %q, want %q", dlq.subjects[0], want)
	}
	if dlq.ids[0] != d.MessageId {
		t.Errorf("dlq message id = %q, want %q", dlq.ids[0], d.MessageId)
	}
	if dlq.headers[0]["x-last-error"] == "" {
		t.Error("dlq message carries no x-last-error header")
	}
	if last.acks != 1 {
		t.Errorf("final delivery acks = %d, want 1 (terminate)", last.acks)
	}
	if last.nacks != 0 {
		t.Errorf("final delivery nacks = %d, want 0", last.nacks)
	}

	// Counter resets after dead-lettering: a fresh failure starts over.
	acker := &fakeAcker{}
	s.handle(context.Background(), s.log, delivery(acker, entity.KindReceived))
	if acker.nacks != 1 || len(dlq.subjects) != 1 {
		t.Error("retry counter not cleared after dead-lettering")
	}
}

func TestHandleRequeuesWhenDLQPublishFails(t *testing.T) {
	conv := &fakeConversations{applyErr: fmt.Errorf("projection down")}
	dlq := &fakeDLQ{err: fmt.Errorf("dlq unavailable")}
	s := testService(conv, dlq)

	var last *fakeAcker
	for attempt := 1; attempt <= 5; attempt++ {
		last = &fakeAcker{}
		s.handle(context.Background(), s.log, delivery(last, entity.KindReceived))
	}

	if last.nacks != 1 || !last.requeue {
		t.Error("delivery not requeued when dlq publish failed")
	}
	if last.acks != 0 {
		t.Error("delivery acked although dlq publish failed")
	}
}

func TestSuccessClearsRetryCounter(t *testing.T) {
	conv := &fakeConversations{applyErr: fmt.Errorf("transient")}
	dlq := &fakeDLQ{}
	s := testService(conv, dlq)

	for attempt := 1; attempt <= 3; attempt++ {
		s.handle(context.Background(), s.log, delivery(&fakeAcker{}, entity.KindReceived))
	}
	conv.applyErr = nil
	s.handle(context.Background(), s.log, delivery(&fakeAcker{}, entity.KindReceived))

	// Fail again: the budget starts from scratch, no dead-letter yet.
	conv.applyErr = fmt.Errorf("transient")
	for attempt := 1; attempt <= 4; attempt++ {
		s.handle(context.Background(), s.log, delivery(&fakeAcker{}, entity.KindReceived))
	}
	if len(dlq.subjects) != 0 {
		t.Error("retry counter survived a successful delivery")
	}
}
