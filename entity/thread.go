package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Thread types.
const (
	ThreadDirect      = "direct-message"
	ThreadTaskGrouped = "task-grouped"
	ThreadFeedComment = "feed-comment"
)

// Thread statuses.
const (
	ThreadActive   = "active"
	ThreadArchived = "archived"
	ThreadClosed   = "closed"
)

// Thread is one conversation. Unique per grouping key while active;
// archived and closed threads are invisible to find-or-create, so a new
// active thread starts after closure.
type Thread struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ThreadID        string             `json:"thread_id" bson:"thread_id"`
	CompanyID       string             `json:"company_id" bson:"company_id"`
	Type            string             `json:"type" bson:"type"`
	ChannelType     string             `json:"channel_type" bson:"channel_type"`
	ConnectionID    string             `json:"connection_id" bson:"connection_id"`
	ExternalUserID  string             `json:"external_user_id,omitempty" bson:"external_user_id,omitempty"`
	TaskID          string             `json:"task_id,omitempty" bson:"task_id,omitempty"`
	Status          string             `json:"status" bson:"status"`
	MessageCount    int64              `json:"message_count" bson:"message_count"`
	LastMessageAt   time.Time          `json:"last_message_at,omitempty" bson:"last_message_at,omitempty"`
	LastMessageText string             `json:"last_message_text,omitempty" bson:"last_message_text,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}
