package entity

// FileMetadata travels with a stored attachment binary and ties it back
// to the message and connection it arrived on.
type FileMetadata struct {
	CompanyID    string `json:"company_id,omitempty" bson:"company_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty" bson:"connection_id,omitempty"`
	MessageID    string `json:"message_id,omitempty" bson:"message_id,omitempty"`
	Channel      string `json:"channel,omitempty" bson:"channel,omitempty"`
	MimeType     string `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
}
