package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Outbox statuses. Published and failed are terminal.
const (
	OutboxPending   = "pending"
	OutboxPublished = "published"
	OutboxFailed    = "failed"
)

// OutboxEvent is a durable publish intent. It is written before any
// broker interaction so a crash between "decide to publish" and
// "published" cannot lose the event.
type OutboxEvent struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CompanyID     string             `json:"company_id" bson:"company_id"`
	Channel       string             `json:"channel" bson:"channel"`
	ConnectionID  string             `json:"connection_id" bson:"connection_id"`
	RemoteID      string             `json:"remote_id,omitempty" bson:"remote_id,omitempty"`
	Kind          string             `json:"kind" bson:"kind"`
	Payload       []byte             `json:"-" bson:"payload"`
	Headers       map[string]string  `json:"headers,omitempty" bson:"headers,omitempty"`
	Subject       string             `json:"subject,omitempty" bson:"subject,omitempty"`
	Status        string             `json:"status" bson:"status"`
	RetryCount    int                `json:"retry_count" bson:"retry_count"`
	NextAttemptAt time.Time          `json:"next_attempt_at" bson:"next_attempt_at"`
	Error         string             `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}
