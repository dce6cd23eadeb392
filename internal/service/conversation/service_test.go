package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"OmniHub/entity"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errMongoDown = errors.New("mongo down")

// memRepo is an in-memory stand-in for the mongo repository that
// mirrors its find-or-create and uniqueness semantics.
type memRepo struct {
	tasks    []*entity.Task
	threads  []*entity.Thread
	messages []*entity.Message

	failBumps int
}

func (r *memRepo) FindOpenTask(companyID, channelType, connectionID, customerID string) (*entity.Task, error) {
	for _, t := range r.tasks {
		if t.Status == entity.TaskOpen &&
			t.CompanyID == companyID && t.ChannelType == channelType &&
			t.ConnectionID == connectionID && t.CustomerID == customerID {
			return t, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateTask(task entity.Task) (*entity.Task, error) {
	task.ID = primitive.NewObjectID()
	task.Status = entity.TaskOpen
	r.tasks = append(r.tasks, &task)
	return &task, nil
}

func (r *memRepo) TouchTask(taskID, lastMessageID, participant string) error {
	for _, t := range r.tasks {
		if t.ID.Hex() == taskID {
			t.LastMessageID = lastMessageID
		}
	}
	return nil
}

func (r *memRepo) CloseTask(taskID string) error {
	for _, t := range r.tasks {
		if t.ID.Hex() == taskID {
			t.Status = entity.TaskClosed
			return nil
		}
	}
	return entity.ErrTaskNotFound
}

func (r *memRepo) FindActiveThreadByTask(companyID, taskID string) (*entity.Thread, error) {
	for _, th := range r.threads {
		if th.Status == entity.ThreadActive && th.CompanyID == companyID && th.TaskID == taskID {
			return th, nil
		}
	}
	return nil, nil
}

func (r *memRepo) FindActiveThreadByUser(companyID, connectionID, externalUserID string) (*entity.Thread, error) {
	for _, th := range r.threads {
		if th.Status == entity.ThreadActive && th.CompanyID == companyID &&
			th.ConnectionID == connectionID && th.ExternalUserID == externalUserID {
			return th, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateThread(thread entity.Thread) (*entity.Thread, error) {
	thread.ID = primitive.NewObjectID()
	thread.Status = entity.ThreadActive
	r.threads = append(r.threads, &thread)
	return &thread, nil
}

func (r *memRepo) BumpThread(threadID string, seq int64, lastMessageAt time.Time, lastMessageText string) error {
	if r.failBumps > 0 {
		r.failBumps--
		return errMongoDown
	}
	for _, th := range r.threads {
		if th.ThreadID == threadID && th.MessageCount < seq {
			th.MessageCount = seq
			th.LastMessageAt = lastMessageAt
			th.LastMessageText = lastMessageText
		}
	}
	return nil
}

func (r *memRepo) FindMessageByRemoteID(connectionID, remoteID string) (*entity.Message, error) {
	for _, m := range r.messages {
		if m.ConnectionID == connectionID && m.RemoteID == remoteID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *memRepo) InsertMessage(msg entity.Message) (*entity.Message, bool, error) {
	if msg.RemoteID != "" {
		if existing, _ := r.FindMessageByRemoteID(msg.ConnectionID, msg.RemoteID); existing != nil {
			return existing, false, nil
		}
	}
	msg.ID = primitive.NewObjectID()
	r.messages = append(r.messages, &msg)
	return &msg, true, nil
}

func (r *memRepo) MaxSequence(threadID string) (int64, error) {
	var max int64
	for _, m := range r.messages {
		if m.ThreadID == threadID && m.SequenceNumber > max {
			max = m.SequenceNumber
		}
	}
	return max, nil
}

func (r *memRepo) UpdateMessageStatus(connectionID, messageID, remoteID, status string, ts time.Time, errMsg string) error {
	for _, m := range r.messages {
		if connectionID != "" && m.ConnectionID != connectionID {
			continue
		}
		if (messageID != "" && m.MessageID == messageID) || (remoteID != "" && m.RemoteID == remoteID) {
			m.Status = status
			m.StatusError = errMsg
			return nil
		}
	}
	return entity.ErrMessageNotFound
}

type recordingNotifier struct {
	messages []entity.Message
	statuses []string
	threads  []entity.Thread
	tasks    []entity.Task
}

func (n *recordingNotifier) BroadcastMessage(msg entity.Message) { n.messages = append(n.messages, msg) }
func (n *recordingNotifier) BroadcastStatus(messageID, remoteID, status string) {
	n.statuses = append(n.statuses, status)
}
func (n *recordingNotifier) BroadcastThread(thread entity.Thread) {
	n.threads = append(n.threads, thread)
}
func (n *recordingNotifier) BroadcastTask(task entity.Task) { n.tasks = append(n.tasks, task) }

func newTestService(repo *memRepo, notify Notifier) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, nil, notify, log)
}

func inboundEvent(remoteID, body string) entity.ChannelEvent {
	return entity.ChannelEvent{
		Channel:      entity.ChannelWhatsApp,
		Kind:         entity.KindReceived,
		Direction:    entity.DirectionInbound,
		CompanyID:    "acme",
		ConnectionID: "conn-1",
		SenderID:     "491700000001",
		RecipientID:  "15550001111",
		RemoteID:     remoteID,
		Timestamp:    time.Now().UTC(),
		Type:         entity.TypeText,
		Body:         body,
	}
}

func TestApplyEventCreatesTaskThreadAndMessage(t *testing.T) {
	repo := &memRepo{}
	notify := &recordingNotifier{}
	s := newTestService(repo, notify)

	msg, err := s.ApplyEvent(context.Background(), inboundEvent("wamid.1", "hello"))
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	if len(repo.tasks) != 1 || len(repo.threads) != 1 || len(repo.messages) != 1 {
		t.Fatalf("got %d tasks, %d threads, %d messages, want 1 of each",
			len(repo.tasks), len(repo.threads), len(repo.messages))
	}
	if msg.SequenceNumber != 1 {
		t.Errorf("sequence = %d, want 1", msg.SequenceNumber)
	}
	if msg.Status != entity.StatusReceived {
		t.Errorf("status = %q, want %q", msg.Status, entity.StatusReceived)
	}
	if msg.TaskID != repo.tasks[0].ID.Hex() {
		t.Errorf("message bound to task %q, want %q", msg.TaskID, repo.tasks[0].ID.Hex())
	}
	if len(notify.messages) != 1 || len(notify.tasks) != 1 || len(notify.threads) != 1 {
		t.Error("new message, task and thread were not all broadcast")
	}
}

func TestApplyEventReusesOpenTaskAndThread(t *testing.T) {
	repo := &memRepo{}
	s := newTestService(repo, nil)

	first, err := s.ApplyEvent(context.Background(), inboundEvent("wamid.1", "hello"))
	if err != nil {
		t.Fatalf("first ApplyEvent: %v", err)
	}
	second, err := s.ApplyEvent(context.Background(), inboundEvent("wamid.2", "again"))
	if err != nil {
		t.Fatalf("second ApplyEvent: %v", err)
	}

	if len(repo.tasks) != 1 {
		t.Errorf("got %d tasks, want 1 (reuse)", len(repo.tasks))
	}
	if len(repo.threads) != 1 {
		t.Errorf("got %d threads, want 1 (reuse)", len(repo.threads))
	}
	if first.ThreadID != second.ThreadID {
		t.Error("messages landed in different threads")
	}
	if second.SequenceNumber != first.SequenceNumber+1 {
		t.Errorf("sequence did not advance: %d then %d", first.SequenceNumber, second.SequenceNumber)
	}
}

func TestApplyEventIsIdempotentOnRemoteID(t *testing.T) {
	repo := &memRepo{}
	notify := &recordingNotifier{}
	s := newTestService(repo, notify)

	ev := inboundEvent("wamid.1", "hello")
	first, err := s.ApplyEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("first ApplyEvent: %v", err)
	}
	again, err := s.ApplyEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("second ApplyEvent: %v", err)
	}

	if again.MessageID != first.MessageID {
		t.Errorf("duplicate produced a new message: %q vs %q", again.MessageID, first.MessageID)
	}
	if len(repo.messages) != 1 {
		t.Errorf("got %d messages, want 1", len(repo.messages))
	}
	if repo.threads[0].MessageCount != 1 {
		t.Errorf("duplicate inflated message count: %d", repo.threads[0].MessageCount)
	}
	if len(notify.messages) != 1 {
		t.Errorf("duplicate was broadcast again")
	}
}

func TestApplyEventResumesCountersAfterPartialFailure(t *testing.T) {
	repo := &memRepo{failBumps: 1}
	s := newTestService(repo, nil)

	ev := inboundEvent("wamid.1", "hello")
	if _, err := s.ApplyEvent(context.Background(), ev); err == nil {
		t.Fatal("expected error while counters are unreachable")
	}
	if len(repo.messages) != 1 {
		t.Fatalf("message not persisted before the counter failure")
	}
	if repo.threads[0].MessageCount != 0 {
		t.Fatalf("counter advanced despite the failure")
	}

	// Broker redelivery retries the same event; the duplicate path must
	// finish the counter updates the first attempt skipped.
	msg, err := s.ApplyEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("retry ApplyEvent: %v", err)
	}
	if len(repo.messages) != 1 {
		t.Errorf("retry inserted a second message")
	}
	if repo.threads[0].MessageCount != 1 {
		t.Errorf("message count = %d, want 1 after resume", repo.threads[0].MessageCount)
	}
	if repo.threads[0].LastMessageText != "hello" {
		t.Errorf("last message text = %q", repo.threads[0].LastMessageText)
	}
	if repo.tasks[0].LastMessageID != msg.MessageID {
		t.Errorf("task last message id = %q, want %q", repo.tasks[0].LastMessageID, msg.MessageID)
	}
}

func TestApplyEventAfterCloseOpensFreshTask(t *testing.T) {
	repo := &memRepo{}
	s := newTestService(repo, nil)

	first, err := s.ApplyEvent(context.Background(), inboundEvent("wamid.1", "hello"))
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if err := s.CloseTask(first.TaskID); err != nil {
		t.Fatalf("CloseTask: %v", err)
	}

	second, err := s.ApplyEvent(context.Background(), inboundEvent("wamid.2", "new round"))
	if err != nil {
		t.Fatalf("ApplyEvent after close: %v", err)
	}

	if second.TaskID == first.TaskID {
		t.Error("closed task was reused")
	}
	if len(repo.tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(repo.tasks))
	}
}

func TestApplyStatusTransitionsMessage(t *testing.T) {
	repo := &memRepo{}
	notify := &recordingNotifier{}
	s := newTestService(repo, notify)

	ev := inboundEvent("wamid.1", "hello")
	if _, err := s.ApplyEvent(context.Background(), ev); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	status := inboundEvent("wamid.1", "")
	status.Kind = entity.KindStatus
	status.Status = entity.StatusRead
	if err := s.ApplyStatus(context.Background(), status); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}

	if repo.messages[0].Status != entity.StatusRead {
		t.Errorf("status = %q, want %q", repo.messages[0].Status, entity.StatusRead)
	}
	if len(notify.statuses) != 1 {
		t.Error("status change not broadcast")
	}
}

func TestApplyStatusIgnoresOtherConnections(t *testing.T) {
	repo := &memRepo{}
	s := newTestService(repo, nil)

	if _, err := s.ApplyEvent(context.Background(), inboundEvent("mid.1", "hello")); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	// Messenger mids are only unique per page; the same id on another
	// connection must not transition this message.
	status := inboundEvent("mid.1", "")
	status.Kind = entity.KindStatus
	status.Status = entity.StatusRead
	status.ConnectionID = "conn-other"
	if err := s.ApplyStatus(context.Background(), status); err == nil {
		t.Fatal("status matched across connections")
	}
	if repo.messages[0].Status != entity.StatusReceived {
		t.Errorf("message status changed to %q", repo.messages[0].Status)
	}
}

func TestApplyStatusUnknownMessage(t *testing.T) {
	s := newTestService(&memRepo{}, nil)

	ev := inboundEvent("wamid.missing", "")
	ev.Kind = entity.KindStatus
	ev.Status = entity.StatusDelivered

	if err := s.ApplyStatus(context.Background(), ev); err == nil {
		t.Fatal("expected error for unknown remote id")
	}
}

func TestApplyStatusRequiresStatus(t *testing.T) {
	s := newTestService(&memRepo{}, nil)

	ev := inboundEvent("wamid.1", "")
	ev.Kind = entity.KindStatus
	if err := s.ApplyStatus(context.Background(), ev); err == nil {
		t.Fatal("expected error for status event without status")
	}
}

func TestInitialStatusOutboundQueued(t *testing.T) {
	repo := &memRepo{}
	s := newTestService(repo, nil)

	ev := inboundEvent("wamid.out", "reply")
	ev.Direction = entity.DirectionOutbound
	msg, err := s.ApplyEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if msg.Status != entity.StatusQueued {
		t.Errorf("status = %q, want %q", msg.Status, entity.StatusQueued)
	}
}
