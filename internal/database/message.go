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

// FindMessageByRemoteID looks a message up by its provider id on one
// connection. Returns nil when there is no match.
func (m *MongoDB) FindMessageByRemoteID(connectionID, remoteID string) (*entity.Message, error) {
	return m.findMessage(bson.D{
		{"connection_id", connectionID},
		{"remote_id", remoteID},
	})
}

// FindMessageByMessageID looks a message up by its internal id.
func (m *MongoDB) FindMessageByMessageID(messageID string) (*entity.Message, error) {
	return m.findMessage(bson.D{{"message_id", messageID}})
}

func (m *MongoDB) findMessage(filter bson.D) (*entity.Message, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(messagesCollection)

	var msg entity.Message
	err = collection.FindOne(m.ctx, filter).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb find message: %w", err)
	}
	return &msg, nil
}

// InsertMessage persists a new message. A duplicate-key violation on
// (connection_id, remote_id) means a concurrent retry already inserted
// the same event; the existing document is re-read and returned so the
// caller sees one stable result either way.
func (m *MongoDB) InsertMessage(msg entity.Message) (*entity.Message, bool, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	collection := connection.Database(m.database).Collection(messagesCollection)
	_, err = collection.InsertOne(m.ctx, msg)
	m.disconnect(connection)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) && msg.RemoteID != "" {
			existing, ferr := m.FindMessageByRemoteID(msg.ConnectionID, msg.RemoteID)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("mongodb insert message: %w", err)
	}
	return &msg, true, nil
}

// MaxSequence returns the highest sequence number in a thread, 0 for an
// empty thread. Per-thread writes are serialized by the owning bucket,
// which makes the read-then-increment safe.
func (m *MongoDB) MaxSequence(threadID string) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(messagesCollection)
	opts := options.FindOne().SetSort(bson.D{{"sequence_number", -1}})

	var top struct {
		SequenceNumber int64 `bson:"sequence_number"`
	}
	err = collection.FindOne(m.ctx, bson.D{{"thread_id", threadID}}, opts).Decode(&top)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("mongodb max sequence: %w", err)
	}
	return top.SequenceNumber, nil
}

// UpdateMessageStatus transitions a message's delivery status, matched
// by internal message id or provider remote id, and stamps the
// corresponding timestamp field. Remote ids are only unique within one
// connection, so a non-empty connectionID narrows the match to it.
func (m *MongoDB) UpdateMessageStatus(connectionID, messageID, remoteID, status string, ts time.Time, errMsg string) error {
	if messageID == "" && remoteID == "" {
		return entity.ErrMessageNotFound
	}

	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	var filter bson.D
	switch {
	case messageID != "" && remoteID != "":
		filter = bson.D{{"$or", bson.A{
			bson.D{{"message_id", messageID}},
			bson.D{{"remote_id", remoteID}},
		}}}
	case messageID != "":
		filter = bson.D{{"message_id", messageID}}
	default:
		filter = bson.D{{"remote_id", remoteID}}
	}
	if connectionID != "" {
		filter = append(bson.D{{"connection_id", connectionID}}, filter...)
	}

	set := bson.D{
		{"status", status},
		{"updated_at", time.Now().UTC()},
	}
	switch status {
	case entity.StatusSent:
		set = append(set, bson.E{Key: "sent_at", Value: ts})
	case entity.StatusDelivered:
		set = append(set, bson.E{Key: "delivered_at", Value: ts})
	case entity.StatusRead:
		set = append(set, bson.E{Key: "read_at", Value: ts})
	case entity.StatusFailed:
		set = append(set, bson.E{Key: "failed_at", Value: ts})
	}
	if errMsg != "" {
		set = append(set, bson.E{Key: "status_error", Value: errMsg})
	}

	collection := connection.Database(m.database).Collection(messagesCollection)
	res, err := collection.UpdateOne(m.ctx, filter, bson.D{{"$set", set}})
	if err != nil {
		return fmt.Errorf("mongodb update message status: %w", err)
	}
	if res.MatchedCount == 0 {
		return entity.ErrMessageNotFound
	}
	return nil
}

// ListThreadMessages returns a thread's messages in sequence order.
func (m *MongoDB) ListThreadMessages(threadID string, limit, offset int) ([]entity.Message, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	opts := options.Find().
		SetSort(bson.D{{"sequence_number", 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	collection := connection.Database(m.database).Collection(messagesCollection)
	cursor, err := collection.Find(m.ctx, bson.D{{"thread_id", threadID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find thread messages: %w", err)
	}
	defer cursor.Close(m.ctx)

	var messages []entity.Message
	if err = cursor.All(m.ctx, &messages); err != nil {
		return nil, fmt.Errorf("mongodb decode thread messages: %w", err)
	}
	return messages, nil
}
