package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task statuses.
const (
	TaskOpen     = "open"
	TaskClosed   = "closed"
	TaskArchived = "archived"
)

// Task is the work item grouping one customer conversation on one
// connection. At most one open task exists per
// (company_id, channel_type, connection_id, customer_id); a closed task
// is never reopened by new traffic.
type Task struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CompanyID     string             `json:"company_id" bson:"company_id"`
	ChannelType   string             `json:"channel_type" bson:"channel_type"`
	ConnectionID  string             `json:"connection_id" bson:"connection_id"`
	CustomerID    string             `json:"customer_id" bson:"customer_id"`
	Status        string             `json:"status" bson:"status"`
	Participants  []string           `json:"participants,omitempty" bson:"participants,omitempty"`
	LastMessageID string             `json:"last_message_id,omitempty" bson:"last_message_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}
