package repository

import (
	"OmniHub/entity"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnqueueOutbox persists a publish intent. The record starts pending
// and due immediately; the outbox worker owns it from here.
func (m *MongoDB) EnqueueOutbox(ev entity.OutboxEvent) (string, error) {
	connection, err := m.connect()
	if err != nil {
		return "", err
	}
	defer m.disconnect(connection)

	now := time.Now().UTC()
	ev.Status = entity.OutboxPending
	ev.RetryCount = 0
	ev.NextAttemptAt = now
	ev.CreatedAt = now
	ev.UpdatedAt = now

	collection := connection.Database(m.database).Collection(outboxEventsCollection)
	res, err := collection.InsertOne(m.ctx, ev)
	if err != nil {
		return "", fmt.Errorf("mongodb insert outbox event: %w", err)
	}

	id, _ := res.InsertedID.(primitive.ObjectID)
	return id.Hex(), nil
}

// DueOutboxEvents returns up to limit pending records whose
// next_attempt_at has passed, oldest attempt first.
func (m *MongoDB) DueOutboxEvents(now time.Time, limit int) ([]entity.OutboxEvent, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(outboxEventsCollection)
	filter := bson.D{
		{"status", entity.OutboxPending},
		{"next_attempt_at", bson.D{{"$lte", now}}},
	}
	opts := options.Find().
		SetSort(bson.D{{"next_attempt_at", 1}}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find due outbox events: %w", err)
	}
	defer cursor.Close(m.ctx)

	var events []entity.OutboxEvent
	if err = cursor.All(m.ctx, &events); err != nil {
		return nil, fmt.Errorf("mongodb decode outbox events: %w", err)
	}

	return events, nil
}

// MarkOutboxPublished finalizes a record after a successful publish.
func (m *MongoDB) MarkOutboxPublished(id primitive.ObjectID, subject string) error {
	return m.updateOutbox(id, bson.D{{"$set", bson.D{
		{"status", entity.OutboxPublished},
		{"subject", subject},
		{"error", ""},
		{"updated_at", time.Now().UTC()},
	}}})
}

// RescheduleOutbox records a failed publish attempt and pushes the next
// attempt out. nextAttemptAt never moves backwards across retries.
func (m *MongoDB) RescheduleOutbox(id primitive.ObjectID, retryCount int, nextAttemptAt time.Time, errMsg string) error {
	return m.updateOutbox(id, bson.D{{"$set", bson.D{
		{"retry_count", retryCount},
		{"next_attempt_at", nextAttemptAt},
		{"error", errMsg},
		{"updated_at", time.Now().UTC()},
	}}})
}

// MarkOutboxFailed is the terminal transition after exhausting retries.
// Failed records need operator attention; they are never retried again.
func (m *MongoDB) MarkOutboxFailed(id primitive.ObjectID, errMsg string) error {
	return m.updateOutbox(id, bson.D{{"$set", bson.D{
		{"status", entity.OutboxFailed},
		{"error", errMsg},
		{"updated_at", time.Now().UTC()},
	}}})
}

func (m *MongoDB) updateOutbox(id primitive.ObjectID, update bson.D) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(outboxEventsCollection)
	_, err = collection.UpdateOne(m.ctx, bson.D{{"_id", id}}, update)
	if err != nil {
		return fmt.Errorf("mongodb update outbox event: %w", err)
	}
	return nil
}
