package ingest

import (
	"OmniHub/entity"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Normalize converts a provider-specific webhook body into canonical
// channel events. companyID and connectionID come from the webhook
// route context; a provider-supplied connection id (e.g. the WhatsApp
// phone number id) fills in when the route carries none.
func Normalize(channel, companyID, connectionID string, body []byte) ([]entity.ChannelEvent, error) {
	switch channel {
	case entity.ChannelWhatsApp:
		return normalizeWhatsApp(companyID, connectionID, body)
	case entity.ChannelFacebook, entity.ChannelInstagram:
		return normalizeMessenger(channel, companyID, connectionID, body)
	case entity.ChannelLinkedIn:
		return normalizeLinkedIn(companyID, connectionID, body)
	default:
		return nil, fmt.Errorf("unsupported channel %q", channel)
	}
}

// VerifyMetaSignature checks the X-Hub-Signature-256 header Meta sends
// with WhatsApp, Facebook and Instagram webhooks.
func VerifyMetaSignature(appSecret string, body []byte, signature string) bool {
	if len(signature) < 8 || signature[:7] != "sha256=" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature[7:]), []byte(expected))
}

// whatsAppPayload mirrors the Graph API webhook shape.
type whatsAppPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []whatsAppMessage `json:"messages"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					Timestamp   string `json:"timestamp"`
					RecipientID string `json:"recipient_id"`
					Errors      []struct {
						Code  int    `json:"code"`
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsAppMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *whatsAppMedia `json:"image,omitempty"`
	Video    *whatsAppMedia `json:"video,omitempty"`
	Audio    *whatsAppMedia `json:"audio,omitempty"`
	Document *whatsAppMedia `json:"document,omitempty"`
	Sticker  *whatsAppMedia `json:"sticker,omitempty"`
}

type whatsAppMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

func normalizeWhatsApp(companyID, connectionID string, body []byte) ([]entity.ChannelEvent, error) {
	var payload whatsAppPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse whatsapp payload: %w", err)
	}
	if payload.Object != "whatsapp_business_account" {
		return nil, fmt.Errorf("unexpected whatsapp payload object %q", payload.Object)
	}

	var events []entity.ChannelEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			value := change.Value

			connID := connectionID
			if connID == "" {
				connID = value.Metadata.PhoneNumberID
			}

			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, msg := range value.Messages {
				ev := entity.ChannelEvent{
					Channel:      entity.ChannelWhatsApp,
					Kind:         entity.KindReceived,
					Direction:    entity.DirectionInbound,
					CompanyID:    companyID,
					ConnectionID: connID,
					SenderID:     msg.From,
					SenderName:   names[msg.From],
					RecipientID:  value.Metadata.PhoneNumberID,
					RemoteID:     msg.ID,
					Timestamp:    unixSeconds(msg.Timestamp),
					Type:         msg.Type,
					Raw:          body,
				}
				if msg.Text != nil {
					ev.Body = msg.Text.Body
				}
				for _, media := range []*whatsAppMedia{msg.Image, msg.Video, msg.Audio, msg.Document, msg.Sticker} {
					if media == nil {
						continue
					}
					ev.Media = append(ev.Media, entity.MediaRef{
						MediaID:  media.ID,
						MimeType: media.MimeType,
						Filename: media.Filename,
						Caption:  media.Caption,
						SHA256:   media.SHA256,
					})
					if ev.Body == "" {
						ev.Body = media.Caption
					}
				}
				events = append(events, ev)
			}

			for _, st := range value.Statuses {
				ev := entity.ChannelEvent{
					Channel:      entity.ChannelWhatsApp,
					Kind:         entity.KindStatus,
					Direction:    entity.DirectionOutbound,
					CompanyID:    companyID,
					ConnectionID: connID,
					RecipientID:  st.RecipientID,
					RemoteID:     st.ID,
					Timestamp:    unixSeconds(st.Timestamp),
					Type:         entity.TypeText,
					Status:       st.Status,
					Raw:          body,
				}
				if len(st.Errors) > 0 {
					ev.StatusError = fmt.Sprintf("%d: %s", st.Errors[0].Code, st.Errors[0].Title)
				}
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

// messengerPayload mirrors the Messenger Platform webhook shape used by
// both Facebook pages and Instagram professional accounts.
type messengerPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Time      int64  `json:"time"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Timestamp int64 `json:"timestamp"`
			Message   *struct {
				MID         string `json:"mid"`
				Text        string `json:"text"`
				IsEcho      bool   `json:"is_echo"`
				Attachments []struct {
					Type    string `json:"type"`
					Payload struct {
						URL string `json:"url"`
					} `json:"payload"`
				} `json:"attachments"`
			} `json:"message,omitempty"`
			Delivery *struct {
				MIDs []string `json:"mids"`
			} `json:"delivery,omitempty"`
		} `json:"messaging"`
	} `json:"entry"`
}

func normalizeMessenger(channel, companyID, connectionID string, body []byte) ([]entity.ChannelEvent, error) {
	var payload messengerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse %s payload: %w", channel, err)
	}

	var events []entity.ChannelEvent
	for _, entry := range payload.Entry {
		connID := connectionID
		if connID == "" {
			connID = entry.ID
		}

		for _, messaging := range entry.Messaging {
			ts := time.UnixMilli(messaging.Timestamp).UTC()

			if messaging.Message != nil {
				msg := messaging.Message
				direction := entity.DirectionInbound
				if msg.IsEcho {
					direction = entity.DirectionOutbound
				}
				ev := entity.ChannelEvent{
					Channel:      channel,
					Kind:         entity.KindReceived,
					Direction:    direction,
					CompanyID:    companyID,
					ConnectionID: connID,
					SenderID:     messaging.Sender.ID,
					RecipientID:  messaging.Recipient.ID,
					RemoteID:     msg.MID,
					Timestamp:    ts,
					Type:         entity.TypeText,
					Body:         msg.Text,
					Raw:          body,
				}
				for _, att := range msg.Attachments {
					if att.Payload.URL == "" {
						continue
					}
					if ev.Type == entity.TypeText && msg.Text == "" {
						ev.Type = att.Type
					}
					ev.Media = append(ev.Media, entity.MediaRef{URL: att.Payload.URL})
					if ev.MediaURL == "" {
						ev.MediaURL = att.Payload.URL
					}
				}
				events = append(events, ev)
			}

			if messaging.Delivery != nil {
				for _, mid := range messaging.Delivery.MIDs {
					events = append(events, entity.ChannelEvent{
						Channel:      channel,
						Kind:         entity.KindStatus,
						Direction:    entity.DirectionOutbound,
						CompanyID:    companyID,
						ConnectionID: connID,
						RecipientID:  messaging.Recipient.ID,
						RemoteID:     mid,
						Timestamp:    ts,
						Type:         entity.TypeText,
						Status:       entity.StatusDelivered,
						Raw:          body,
					})
				}
			}
		}
	}
	return events, nil
}

// linkedInPayload is the simplified message-event shape LinkedIn
// delivers for organization conversations.
type linkedInPayload struct {
	Events []struct {
		EventID     string `json:"eventId"`
		Actor       string `json:"actor"`
		Recipient   string `json:"recipient"`
		MessageText string `json:"messageText"`
		MediaURL    string `json:"mediaUrl"`
		CreatedAt   int64  `json:"createdAt"`
	} `json:"events"`
}

func normalizeLinkedIn(companyID, connectionID string, body []byte) ([]entity.ChannelEvent, error) {
	var payload linkedInPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse linkedin payload: %w", err)
	}

	var events []entity.ChannelEvent
	for _, item := range payload.Events {
		ev := entity.ChannelEvent{
			Channel:      entity.ChannelLinkedIn,
			Kind:         entity.KindReceived,
			Direction:    entity.DirectionInbound,
			CompanyID:    companyID,
			ConnectionID: connectionID,
			SenderID:     item.Actor,
			RecipientID:  item.Recipient,
			RemoteID:     item.EventID,
			Timestamp:    time.UnixMilli(item.CreatedAt).UTC(),
			Type:         entity.TypeText,
			Body:         item.MessageText,
			MediaURL:     item.MediaURL,
			Raw:          body,
		}
		if item.MediaURL != "" && item.MessageText == "" {
			ev.Type = entity.TypeImage
		}
		events = append(events, ev)
	}
	return events, nil
}

func unixSeconds(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
