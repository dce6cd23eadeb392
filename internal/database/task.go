package repository

import (
	"OmniHub/entity"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindOpenTask returns the open task for the conversation tuple, or nil
// when there is none. Closed and archived tasks never match, so new
// traffic after closure starts a fresh task.
func (m *MongoDB) FindOpenTask(companyID, channelType, connectionID, customerID string) (*entity.Task, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(tasksCollection)
	filter := bson.D{
		{"company_id", companyID},
		{"channel_type", channelType},
		{"connection_id", connectionID},
		{"customer_id", customerID},
		{"status", entity.TaskOpen},
	}

	var task entity.Task
	err = collection.FindOne(m.ctx, filter).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb find open task: %w", err)
	}
	return &task, nil
}

// CreateTask inserts a new open task and returns it with its id set.
func (m *MongoDB) CreateTask(task entity.Task) (*entity.Task, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	now := time.Now().UTC()
	task.Status = entity.TaskOpen
	task.CreatedAt = now
	task.UpdatedAt = now

	collection := connection.Database(m.database).Collection(tasksCollection)
	res, err := collection.InsertOne(m.ctx, task)
	if err != nil {
		return nil, fmt.Errorf("mongodb insert task: %w", err)
	}

	task.ID, _ = res.InsertedID.(primitive.ObjectID)
	return &task, nil
}

// TouchTask updates the last-message pointer and the participant set.
func (m *MongoDB) TouchTask(taskID, lastMessageID, participant string) error {
	oid, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", taskID, err)
	}

	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	update := bson.D{
		{"$set", bson.D{
			{"last_message_id", lastMessageID},
			{"updated_at", time.Now().UTC()},
		}},
	}
	if participant != "" {
		update = append(update, bson.E{Key: "$addToSet", Value: bson.D{{"participants", participant}}})
	}

	collection := connection.Database(m.database).Collection(tasksCollection)
	_, err = collection.UpdateOne(m.ctx, bson.D{{"_id", oid}}, update)
	if err != nil {
		return fmt.Errorf("mongodb touch task: %w", err)
	}
	return nil
}

// CloseTask transitions a task to closed. Subsequent inbound events for
// the same tuple create a new task instead of reopening this one.
func (m *MongoDB) CloseTask(taskID string) error {
	oid, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", taskID, err)
	}

	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(tasksCollection)
	res, err := collection.UpdateOne(m.ctx,
		bson.D{{"_id", oid}},
		bson.D{{"$set", bson.D{
			{"status", entity.TaskClosed},
			{"updated_at", time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongodb close task: %w", err)
	}
	if res.MatchedCount == 0 {
		return entity.ErrTaskNotFound
	}
	return nil
}

// ListTasks returns tasks for a company, most recently updated first.
// An empty status matches every status.
func (m *MongoDB) ListTasks(companyID, status string, limit int) ([]entity.Task, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{"company_id", companyID}}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}
	opts := options.Find().
		SetSort(bson.D{{"updated_at", -1}}).
		SetLimit(int64(limit))

	collection := connection.Database(m.database).Collection(tasksCollection)
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find tasks: %w", err)
	}
	defer cursor.Close(m.ctx)

	var tasks []entity.Task
	if err = cursor.All(m.ctx, &tasks); err != nil {
		return nil, fmt.Errorf("mongodb decode tasks: %w", err)
	}
	return tasks, nil
}
