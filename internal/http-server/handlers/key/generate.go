package key

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"OmniHub/internal/lib/api/response"
	"OmniHub/internal/lib/sl"

	"github.com/go-chi/render"
)

type Core interface {
	GenerateApiKey(username string) (string, error)
}

type GenerateRequest struct {
	Username string `json:"username"`
}

type GenerateReply struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
}

func Generate(log *slog.Logger, core Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}

		apiKey, err := core.GenerateApiKey(req.Username)
		if err != nil {
			log.Error("generating api key", slog.String("username", req.Username), sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to generate key"))
			return
		}

		render.JSON(w, r, GenerateReply{Success: true, Key: apiKey})
	}
}
