package threads

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
		limit := queryInt(r, "limit", 50)

		threads, err := core.ListThreads(companyID, limit)
		if err != nil {
			log.Error("listing threads", slog.String("company_id", companyID), sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to list threads"))
			return
		}

		render.JSON(w, r, threads)
	}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
