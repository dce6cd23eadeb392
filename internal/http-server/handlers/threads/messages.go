package threads

import (
	"log/slog"
	"net/http"

	"OmniHub/internal/lib/api/response"
	"OmniHub/internal/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Messages lists one thread's messages in sequence order.
func Messages(log *slog.Logger, core Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := chi.URLParam(r, "id")
		limit := queryInt(r, "limit", 100)
		offset := queryInt(r, "offset", 0)

		messages, err := core.ListThreadMessages(threadID, limit, offset)
		if err != nil {
			log.Error("listing thread messages", slog.String("thread_id", threadID), sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to list messages"))
			return
		}

		render.JSON(w, r, messages)
	}
}
