// Package conversation projects channel events onto the task, thread
// and message aggregates. Every operation is idempotent: the unique
// indexes in the repository, not in-memory state, arbitrate duplicates.
package conversation

import (
	"OmniHub/entity"
	"OmniHub/internal/lib/sl"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the document-store surface the projection writes to.
type Repository interface {
	FindOpenTask(companyID, channelType, connectionID, customerID string) (*entity.Task, error)
	CreateTask(task entity.Task) (*entity.Task, error)
	TouchTask(taskID, lastMessageID, participant string) error
	CloseTask(taskID string) error
	FindActiveThreadByTask(companyID, taskID string) (*entity.Thread, error)
	FindActiveThreadByUser(companyID, connectionID, externalUserID string) (*entity.Thread, error)
	CreateThread(thread entity.Thread) (*entity.Thread, error)
	BumpThread(threadID string, seq int64, lastMessageAt time.Time, lastMessageText string) error
	FindMessageByRemoteID(connectionID, remoteID string) (*entity.Message, error)
	InsertMessage(msg entity.Message) (*entity.Message, bool, error)
	MaxSequence(threadID string) (int64, error)
	UpdateMessageStatus(connectionID, messageID, remoteID, status string, ts time.Time, errMsg string) error
}

// Attachments resolves event media into stored references.
type Attachments interface {
	Process(ctx context.Context, ev entity.ChannelEvent, messageID string) []entity.AttachmentRef
}

// Notifier fans persisted changes out to live subscribers.
type Notifier interface {
	BroadcastMessage(msg entity.Message)
	BroadcastStatus(messageID, remoteID, status string)
	BroadcastThread(thread entity.Thread)
	BroadcastTask(task entity.Task)
}

type Service struct {
	repo   Repository
	attach Attachments
	notify Notifier
	log    *slog.Logger
}

func NewService(repo Repository, attach Attachments, notify Notifier, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		attach: attach,
		notify: notify,
		log:    log.With(sl.Module("conversation")),
	}
}

// ApplyEvent upserts the message for one received channel event,
// resolving or creating the owning task and thread on the way. Feeding
// the same event twice (same connection and remote id) returns the
// already persisted message; the thread and task counters are settled
// again, which is a no-op unless an earlier attempt crashed between the
// insert and the counter updates.
func (s *Service) ApplyEvent(ctx context.Context, ev entity.ChannelEvent) (*entity.Message, error) {
	if ev.RemoteID != "" {
		existing, err := s.repo.FindMessageByRemoteID(ev.ConnectionID, ev.RemoteID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.log.Debug("event already projected",
				slog.String("remote_id", ev.RemoteID),
				slog.String("message_id", existing.MessageID),
			)
			if err := s.settle(existing, ev); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	task, created, err := s.findOrCreateTask(ev)
	if err != nil {
		return nil, err
	}

	thread, threadCreated, err := s.findOrCreateThread(ev, task)
	if err != nil {
		return nil, err
	}

	messageID := uuid.NewString()

	var refs []entity.AttachmentRef
	if s.attach != nil && (len(ev.Media) > 0 || ev.MediaURL != "") {
		refs = s.attach.Process(ctx, ev, messageID)
	}

	maxSeq, err := s.repo.MaxSequence(thread.ThreadID)
	if err != nil {
		return nil, err
	}

	msg := entity.Message{
		MessageID:         messageID,
		TaskID:            task.ID.Hex(),
		ThreadID:          thread.ThreadID,
		CompanyID:         ev.CompanyID,
		ChannelType:       ev.Channel,
		ConnectionID:      ev.ConnectionID,
		Direction:         ev.Direction,
		RemoteID:          ev.RemoteID,
		Type:              ev.Type,
		Body:              ev.Body,
		Attachments:       refs,
		Status:            initialStatus(ev),
		SequenceNumber:    maxSeq + 1,
		ProviderTimestamp: ev.Timestamp,
		Raw:               ev.Raw,
	}

	persisted, inserted, err := s.repo.InsertMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := s.settle(persisted, ev); err != nil {
		return nil, err
	}
	if !inserted {
		// Lost a race against a concurrent retry of the same event.
		return persisted, nil
	}

	if s.notify != nil {
		s.notify.BroadcastMessage(*persisted)
		if created {
			s.notify.BroadcastTask(*task)
		}
		if threadCreated {
			s.notify.BroadcastThread(*thread)
		}
	}

	return persisted, nil
}

// settle applies the post-insert side effects for a persisted message.
// BumpThread skips sequence numbers the thread already counted, and
// TouchTask writes the same values it wrote before, so settling a
// duplicate delivery cannot double count while a retry still finishes
// the updates an earlier crashed attempt left undone.
func (s *Service) settle(msg *entity.Message, ev entity.ChannelEvent) error {
	if err := s.repo.BumpThread(msg.ThreadID, msg.SequenceNumber, eventTime(ev), msg.Body); err != nil {
		return err
	}
	return s.repo.TouchTask(msg.TaskID, msg.MessageID, ev.SenderID)
}

// ApplyStatus transitions an existing message's delivery status.
func (s *Service) ApplyStatus(ctx context.Context, ev entity.ChannelEvent) error {
	status := ev.Status
	if status == "" {
		return fmt.Errorf("status event without status for remote id %q", ev.RemoteID)
	}

	// Remote ids are only unique per connection (Messenger mids are
	// per-page), so the lookup must carry the connection too.
	err := s.repo.UpdateMessageStatus(ev.ConnectionID, "", ev.RemoteID, status, eventTime(ev), ev.StatusError)
	if err != nil {
		return err
	}

	if s.notify != nil {
		s.notify.BroadcastStatus("", ev.RemoteID, status)
	}
	return nil
}

// CloseTask closes a task; the next inbound event for the same tuple
// starts a fresh one.
func (s *Service) CloseTask(taskID string) error {
	return s.repo.CloseTask(taskID)
}

func (s *Service) findOrCreateTask(ev entity.ChannelEvent) (*entity.Task, bool, error) {
	customerID := ev.CustomerID()

	task, err := s.repo.FindOpenTask(ev.CompanyID, ev.Channel, ev.ConnectionID, customerID)
	if err != nil {
		return nil, false, err
	}
	if task != nil {
		return task, false, nil
	}

	task, err = s.repo.CreateTask(entity.Task{
		CompanyID:    ev.CompanyID,
		ChannelType:  ev.Channel,
		ConnectionID: ev.ConnectionID,
		CustomerID:   customerID,
		Participants: participants(ev),
	})
	if err != nil {
		return nil, false, err
	}

	s.log.Info("task created",
		slog.String("task_id", task.ID.Hex()),
		slog.String("company_id", ev.CompanyID),
		slog.String("customer_id", customerID),
	)
	return task, true, nil
}

func (s *Service) findOrCreateThread(ev entity.ChannelEvent, task *entity.Task) (*entity.Thread, bool, error) {
	thread, err := s.repo.FindActiveThreadByTask(ev.CompanyID, task.ID.Hex())
	if err != nil {
		return nil, false, err
	}
	if thread != nil {
		return thread, false, nil
	}

	thread, err = s.repo.CreateThread(entity.Thread{
		ThreadID:       uuid.NewString(),
		CompanyID:      ev.CompanyID,
		Type:           entity.ThreadTaskGrouped,
		ChannelType:    ev.Channel,
		ConnectionID:   ev.ConnectionID,
		ExternalUserID: ev.CustomerID(),
		TaskID:         task.ID.Hex(),
	})
	if err != nil {
		return nil, false, err
	}

	s.log.Info("thread created",
		slog.String("thread_id", thread.ThreadID),
		slog.String("task_id", task.ID.Hex()),
	)
	return thread, true, nil
}

func initialStatus(ev entity.ChannelEvent) string {
	if ev.Status != "" {
		return ev.Status
	}
	if ev.Direction == entity.DirectionInbound {
		return entity.StatusReceived
	}
	return entity.StatusQueued
}

func eventTime(ev entity.ChannelEvent) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp
	}
	return time.Now().UTC()
}

func participants(ev entity.ChannelEvent) []string {
	var p []string
	if ev.SenderID != "" {
		p = append(p, ev.SenderID)
	}
	if ev.RecipientID != "" && ev.RecipientID != ev.SenderID {
		p = append(p, ev.RecipientID)
	}
	return p
}
