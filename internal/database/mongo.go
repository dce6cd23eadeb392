package repository

import (
	"OmniHub/internal/config"
	"OmniHub/internal/lib/sl"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	webhookEventsCollection = "webhook_events"
	outboxEventsCollection  = "outbox_events"
	tasksCollection         = "tasks"
	threadsCollection       = "threads"
	messagesCollection      = "messages"
	apiKeysCollection       = "api-keys"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
	log           *slog.Logger
}

func NewMongoClient(conf *config.Config, logger *slog.Logger) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
		log:           logger.With(sl.Module("mongodb")),
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect error: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return fmt.Errorf("mongodb find error: %w", err)
}

// EnsureIndexes creates every index the pipeline relies on. The unique
// indexes are the source of truth for idempotency, so this must run
// before any consumer starts.
func (m *MongoDB) EnsureIndexes() error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)

	indexes := map[string][]mongo.IndexModel{
		webhookEventsCollection: {
			{
				Keys:    bson.D{{"channel", 1}, {"remote_id", 1}, {"company_id", 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		outboxEventsCollection: {
			{Keys: bson.D{{"status", 1}, {"next_attempt_at", 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{"message_id", 1}}, Options: options.Index().SetUnique(true)},
			{
				Keys: bson.D{{"connection_id", 1}, {"remote_id", 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(
					bson.D{{"remote_id", bson.D{{"$exists", true}}}},
				),
			},
			{Keys: bson.D{{"task_id", 1}, {"created_at", 1}}},
			{Keys: bson.D{{"thread_id", 1}, {"sequence_number", -1}}},
			{Keys: bson.D{{"company_id", 1}, {"connection_id", 1}, {"created_at", 1}}},
		},
		threadsCollection: {
			{Keys: bson.D{{"thread_id", 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{"company_id", 1}, {"status", 1}, {"last_message_at", -1}}},
			{Keys: bson.D{{"company_id", 1}, {"connection_id", 1}, {"external_user_id", 1}, {"status", 1}}},
		},
		tasksCollection: {
			{Keys: bson.D{{"company_id", 1}, {"connection_id", 1}, {"customer_id", 1}}},
			{Keys: bson.D{{"company_id", 1}, {"status", 1}, {"updated_at", -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(m.ctx, models); err != nil {
			return fmt.Errorf("mongodb create indexes for %s: %w", name, err)
		}
	}

	m.log.Info("indexes ensured", slog.Int("collections", len(indexes)))
	return nil
}

func (m *MongoDB) CheckApiKey(key string) (string, error) {
	connection, err := m.connect()
	if err != nil {
		return "", err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(apiKeysCollection)
	filter := bson.D{{"key", key}}

	var result struct {
		Username string `bson:"username"`
		Key      string `bson:"key"`
	}
	err = collection.FindOne(m.ctx, filter).Decode(&result)
	if err != nil {
		return "", err
	}

	if result.Username == "" {
		return "", fmt.Errorf("api key not found")
	}

	return result.Username, nil
}

func (m *MongoDB) getKeyByUsername(username string) (string, error) {
	connection, err := m.connect()
	if err != nil {
		return "", err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(apiKeysCollection)
	filter := bson.D{{"username", username}}

	var result struct {
		Key string `bson:"key"`
	}
	err = collection.FindOne(m.ctx, filter).Decode(&result)
	if err != nil {
		return "", m.findError(err)
	}

	return result.Key, nil
}

func (m *MongoDB) GenerateApiKey(username string) (string, error) {

	k, err := m.getKeyByUsername(username)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("failed to get existing API key: %w", err)
	}
	if k != "" {
		return k, nil
	}

	connection, err := m.connect()
	if err != nil {
		return "", err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(apiKeysCollection)
	uuid, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("uuid generation error: %w", err)
	}
	key := uuid.String()

	doc := bson.D{
		{"username", username},
		{"key", key},
	}

	_, err = collection.InsertOne(m.ctx, doc)
	if err != nil {
		return "", fmt.Errorf("mongodb insert error: %w", err)
	}

	return key, nil
}
