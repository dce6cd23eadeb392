package tasks

import (
	"log/slog"
	"net/http"
	"strconv"

	"OmniHub/internal/lib/api/response"
	"OmniHub/internal/lib/sl"

	"github.com/go-chi/render"
)

func List(log *slog.Logger, core Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := r.URL.Query().Get("company_id")
		if companyID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("company_id is required"))
			return
		}
		status := r.URL.Query().Get("status")

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				limit = v
			}
		}

		tasks, err := core.ListTasks(companyID, status, limit)
		if err != nil {
			log.Error("listing tasks", slog.String("company_id", companyID), sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to list tasks"))
			return
		}

		render.JSON(w, r, tasks)
	}
}
