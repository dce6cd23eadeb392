package repository

import (
	"OmniHub/entity"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// notClosed excludes archived and closed threads from find-or-create
// lookups, so a new active thread starts after closure.
var notClosed = bson.D{{"$nin", bson.A{entity.ThreadClosed, entity.ThreadArchived}}}

// FindActiveThreadByTask returns the live thread grouped under a task.
func (m *MongoDB) FindActiveThreadByTask(companyID, taskID string) (*entity.Thread, error) {
	return m.findThread(bson.D{
		{"company_id", companyID},
		{"task_id", taskID},
		{"status", notClosed},
	})
}

// FindActiveThreadByUser returns the live direct-message thread for an
// external user on a connection.
func (m *MongoDB) FindActiveThreadByUser(companyID, connectionID, externalUserID string) (*entity.Thread, error) {
	return m.findThread(bson.D{
		{"company_id", companyID},
		{"connection_id", connectionID},
		{"external_user_id", externalUserID},
		{"status", notClosed},
	})
}

func (m *MongoDB) findThread(filter bson.D) (*entity.Thread, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(threadsCollection)

	var thread entity.Thread
	err = collection.FindOne(m.ctx, filter).Decode(&thread)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb find thread: %w", err)
	}
	return &thread, nil
}

// CreateThread inserts a new active thread.
func (m *MongoDB) CreateThread(thread entity.Thread) (*entity.Thread, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	now := time.Now().UTC()
	thread.Status = entity.ThreadActive
	thread.CreatedAt = now
	thread.UpdatedAt = now

	collection := connection.Database(m.database).Collection(threadsCollection)
	if _, err := collection.InsertOne(m.ctx, thread); err != nil {
		return nil, fmt.Errorf("mongodb insert thread: %w", err)
	}
	return &thread, nil
}

// BumpThread advances the thread counters after a message lands in it.
// Sequence numbers are contiguous per thread, so message_count moves
// forward to seq and never past it; re-applying an already-counted
// message matches nothing and changes nothing.
func (m *MongoDB) BumpThread(threadID string, seq int64, lastMessageAt time.Time, lastMessageText string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(threadsCollection)
	_, err = collection.UpdateOne(m.ctx,
		bson.D{
			{"thread_id", threadID},
			{"message_count", bson.D{{"$lt", seq}}},
		},
		bson.D{{"$set", bson.D{
			{"message_count", seq},
			{"last_message_at", lastMessageAt},
			{"last_message_text", lastMessageText},
			{"updated_at", time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongodb bump thread: %w", err)
	}
	return nil
}

// ListThreads returns a company's threads, most recently active first.
func (m *MongoDB) ListThreads(companyID string, limit int) ([]entity.Thread, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	opts := options.Find().
		SetSort(bson.D{{"last_message_at", -1}}).
		SetLimit(int64(limit))

	collection := connection.Database(m.database).Collection(threadsCollection)
	cursor, err := collection.Find(m.ctx, bson.D{{"company_id", companyID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find threads: %w", err)
	}
	defer cursor.Close(m.ctx)

	var threads []entity.Thread
	if err = cursor.All(m.ctx, &threads); err != nil {
		return nil, fmt.Errorf("mongodb decode threads: %w", err)
	}
	return threads, nil
}
