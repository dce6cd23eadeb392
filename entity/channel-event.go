package entity

import "time"

// Supported channel types.
const (
	ChannelWhatsApp  = "whatsapp"
	ChannelFacebook  = "facebook"
	ChannelInstagram = "instagram"
	ChannelLinkedIn  = "linkedin"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionInternal = "internal"
)

// Event kinds routed over the broker.
const (
	KindReceived = "received"
	KindStatus   = "status"
	KindGeneric  = "generic"
)

// Message content types.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
	TypeSticker  = "sticker"
	TypeLocation = "location"
)

// MediaRef points at a binary owned by the originating channel.
// Either MediaID (fetchable via the channel) or URL (direct link) is set.
type MediaRef struct {
	MediaID  string `json:"media_id,omitempty" bson:"media_id,omitempty"`
	URL      string `json:"url,omitempty" bson:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty" bson:"filename,omitempty"`
	Caption  string `json:"caption,omitempty" bson:"caption,omitempty"`
	SHA256   string `json:"sha256,omitempty" bson:"sha256,omitempty"`
	Size     int64  `json:"size,omitempty" bson:"size,omitempty"`
}

// ChannelEvent is the canonical in-flight event every channel payload
// normalizes into. It is not persisted as such; WebhookEvent keeps the
// raw payload and Message keeps the projection.
type ChannelEvent struct {
	Channel      string     `json:"channel" validate:"required"`
	Kind         string     `json:"kind,omitempty"`
	Direction    string     `json:"direction" validate:"required,oneof=inbound outbound internal"`
	CompanyID    string     `json:"company_id" validate:"required"`
	ConnectionID string     `json:"connection_id" validate:"required"`
	SenderID     string     `json:"sender_id,omitempty"`
	SenderName   string     `json:"sender_name,omitempty"`
	RecipientID  string     `json:"recipient_id,omitempty"`
	RemoteID     string     `json:"remote_id,omitempty"`
	Timestamp    time.Time  `json:"timestamp,omitempty"`
	Type         string     `json:"type" validate:"required"`
	Body         string     `json:"body,omitempty"`
	Status       string     `json:"status,omitempty"`
	StatusError  string     `json:"status_error,omitempty"`
	Media        []MediaRef `json:"media,omitempty"`
	MediaURL     string     `json:"media_url,omitempty"`
	Raw          []byte     `json:"raw,omitempty"`
}

// CustomerID returns the external party the conversation is keyed on:
// the sender for inbound traffic, the recipient otherwise.
func (e ChannelEvent) CustomerID() string {
	if e.Direction == DirectionInbound {
		return e.SenderID
	}
	return e.RecipientID
}
