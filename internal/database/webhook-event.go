package repository

import (
	"OmniHub/entity"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// RecordWebhookEventIfNew inserts the idempotency record for a raw
// channel event. The insert attempt itself is the dedup check: the
// unique index on (channel, remote_id, company_id) makes exactly one
// concurrent caller win, everyone else gets isNew=false without error.
func (m *MongoDB) RecordWebhookEventIfNew(channel, remoteID, companyID string, raw []byte) (bool, string, error) {
	connection, err := m.connect()
	if err != nil {
		return false, "", err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(webhookEventsCollection)

	ev := entity.WebhookEvent{
		Channel:    channel,
		RemoteID:   remoteID,
		CompanyID:  companyID,
		Status:     entity.WebhookPending,
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
	}

	res, err := collection.InsertOne(m.ctx, ev)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("mongodb insert webhook event: %w", err)
	}

	id, _ := res.InsertedID.(primitive.ObjectID)
	return true, id.Hex(), nil
}

// MarkWebhookEvent transitions the idempotency record once the event
// made it through (or definitively failed) the pipeline.
func (m *MongoDB) MarkWebhookEvent(id, status string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid webhook event id %q: %w", id, err)
	}

	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(webhookEventsCollection)
	update := bson.D{{"$set", bson.D{{"status", status}}}}
	if status == entity.WebhookFailed {
		update = bson.D{
			{"$set", bson.D{{"status", status}}},
			{"$inc", bson.D{{"retry_count", 1}}},
		}
	}

	_, err = collection.UpdateOne(m.ctx, bson.D{{"_id", oid}}, update)
	if err != nil {
		return fmt.Errorf("mongodb update webhook event: %w", err)
	}
	return nil
}
