package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Webhook event statuses.
const (
	WebhookPending   = "pending"
	WebhookProcessed = "processed"
	WebhookFailed    = "failed"
)

// WebhookEvent is the idempotency record for a raw channel event.
// Unique on (channel, remote_id, company_id): a duplicate insert is a
// no-op, not an error.
type WebhookEvent struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Channel    string             `json:"channel" bson:"channel"`
	RemoteID   string             `json:"remote_id" bson:"remote_id"`
	CompanyID  string             `json:"company_id" bson:"company_id"`
	Status     string             `json:"status" bson:"status"`
	Raw        []byte             `json:"-" bson:"raw,omitempty"`
	RetryCount int                `json:"retry_count" bson:"retry_count"`
	ReceivedAt time.Time          `json:"received_at" bson:"received_at"`
}
