package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message statuses.
const (
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
	StatusReceived  = "received"
)

// AttachmentRef describes a stored attachment. The binary itself lives
// in the central file store; the ref is owned by the embedding Message.
type AttachmentRef struct {
	FileID          string `json:"file_id" bson:"file_id"`
	URL             string `json:"url,omitempty" bson:"url,omitempty"`
	Name            string `json:"name,omitempty" bson:"name,omitempty"`
	MimeType        string `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
	Size            int64  `json:"size,omitempty" bson:"size,omitempty"`
	OriginalMediaID string `json:"original_media_id,omitempty" bson:"original_media_id,omitempty"`
	Caption         string `json:"caption,omitempty" bson:"caption,omitempty"`
	SHA256          string `json:"sha256,omitempty" bson:"sha256,omitempty"`
}

// Message is the persisted projection of one channel event.
// Unique on message_id, and on (connection_id, remote_id) when the
// provider id is present. SequenceNumber is strictly increasing per
// thread and never reused.
type Message struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MessageID         string             `json:"message_id" bson:"message_id"`
	TaskID            string             `json:"task_id" bson:"task_id"`
	ThreadID          string             `json:"thread_id" bson:"thread_id"`
	CompanyID         string             `json:"company_id" bson:"company_id"`
	ChannelType       string             `json:"channel_type" bson:"channel_type"`
	ConnectionID      string             `json:"connection_id" bson:"connection_id"`
	Direction         string             `json:"direction" bson:"direction"`
	RemoteID          string             `json:"remote_id,omitempty" bson:"remote_id,omitempty"`
	Type              string             `json:"type" bson:"type"`
	Body              string             `json:"body,omitempty" bson:"body,omitempty"`
	Attachments       []AttachmentRef    `json:"attachments,omitempty" bson:"attachments,omitempty"`
	Status            string             `json:"status" bson:"status"`
	StatusError       string             `json:"status_error,omitempty" bson:"status_error,omitempty"`
	SequenceNumber    int64              `json:"sequence_number" bson:"sequence_number"`
	ProviderTimestamp time.Time          `json:"provider_timestamp,omitempty" bson:"provider_timestamp,omitempty"`
	Raw               []byte             `json:"-" bson:"raw,omitempty"`
	SentAt            time.Time          `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	DeliveredAt       time.Time          `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	ReadAt            time.Time          `json:"read_at,omitempty" bson:"read_at,omitempty"`
	FailedAt          time.Time          `json:"failed_at,omitempty" bson:"failed_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}
