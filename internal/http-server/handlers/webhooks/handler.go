package webhooks

import (
	"io"
	"log/slog"
	"net/http"

	"OmniHub/internal/lib/api/response"
	"OmniHub/internal/lib/sl"
	"OmniHub/internal/service/ingest"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type ReceiveReply struct {
	Success  bool `json:"success"`
	Accepted int  `json:"accepted"`
}

// Verify answers the Meta webhook subscription handshake.
func Verify(log *slog.Logger, verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")

		if mode != "subscribe" || token != verifyToken {
			log.Warn("webhook verification rejected",
				slog.String("mode", mode),
				sl.Secret("token", token),
			)
			w.WriteHeader(http.StatusForbidden)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
	}
}

// Receive accepts a raw provider webhook, checks the Meta signature
// when a secret is configured and hands the body to ingestion. Company
// and connection come from query parameters set up per subscription.
func Receive(log *slog.Logger, core Core, appSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := chi.URLParam(r, "channel")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Cannot read request body"))
			return
		}

		if appSecret != "" && metaChannel(channel) {
			signature := r.Header.Get("X-Hub-Signature-256")
			if !ingest.VerifyMetaSignature(appSecret, body, signature) {
				log.Warn("webhook signature mismatch", slog.String("channel", channel))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("Invalid signature"))
				return
			}
		}

		companyID := r.URL.Query().Get("company_id")
		connectionID := r.URL.Query().Get("connection_id")

		accepted, err := core.IngestRaw(r.Context(), channel, companyID, connectionID, body)
		if err != nil {
			log.Error("ingesting webhook",
				slog.String("channel", channel),
				slog.Int("accepted", accepted),
				sl.Err(err),
			)
			// Providers retry on non-2xx; the raw batch is already
			// partially recorded, so answer OK and rely on idempotency.
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, ReceiveReply{Success: err == nil, Accepted: accepted})
	}
}

func metaChannel(channel string) bool {
	switch channel {
	case "whatsapp", "facebook", "instagram":
		return true
	}
	return false
}
