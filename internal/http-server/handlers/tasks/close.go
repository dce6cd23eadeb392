package tasks

import (
	"errors"
	"log/slog"
	"net/http"

	"OmniHub/entity"
	"OmniHub/internal/lib/api/response"
	"OmniHub/internal/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Close marks a task closed. The next inbound message from the same
// customer opens a fresh task.
func Close(log *slog.Logger, core Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "id")

		if err := core.CloseTask(taskID); err != nil {
			if errors.Is(err, entity.ErrTaskNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("Task not found"))
				return
			}
			log.Error("closing task", slog.String("task_id", taskID), sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to close task"))
			return
		}

		render.JSON(w, r, response.OK())
	}
}
