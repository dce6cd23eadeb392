package events

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"OmniHub/entity"
	"OmniHub/internal/lib/api/response"
	"OmniHub/internal/lib/sl"

	"github.com/go-chi/render"
)

type IngestReply struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Processed bool   `json:"processed"`
}

// Ingest accepts one canonical channel event. An Idempotency-Key header
// of the form "companyId:connectionId:remoteId" fills in fields the
// body omits; a repeated event answers 409.
func Ingest(log *slog.Logger, core Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev entity.ChannelEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		if key := r.Header.Get("Idempotency-Key"); key != "" {
			applyIdempotencyKey(&ev, key)
		}

		result, err := core.Ingest(r.Context(), ev)
		if err != nil {
			if errors.Is(err, entity.ErrDuplicateEvent) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Error("Event already processed"))
				return
			}
			log.Error("ingesting event",
				slog.String("channel", ev.Channel),
				slog.String("remote_id", ev.RemoteID),
				sl.Err(err),
			)
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, IngestReply{
			Success:   true,
			MessageID: result.MessageID,
			Processed: result.Processed,
		})
	}
}

func applyIdempotencyKey(ev *entity.ChannelEvent, key string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	if ev.CompanyID == "" {
		ev.CompanyID = parts[0]
	}
	if ev.ConnectionID == "" {
		ev.ConnectionID = parts[1]
	}
	if ev.RemoteID == "" {
		ev.RemoteID = parts[2]
	}
}
