package files

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"OmniHub/internal/lib/fileurl"
)

type Core interface {
	OpenFile(fileID string) (string, string, io.ReadCloser, error)
}

// Download streams a stored attachment to the HTTP response.
// Endpoint: GET /v1/files/{id}?expires=...&sig=...
// The signed query parameters are the authorization; no bearer key is
// needed, so the URL works from <img src> and <a href>.
func Download(log *slog.Logger, handler Core, signSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := chi.URLParam(r, "id")
		if fileID == "" {
			http.Error(w, "file id is required", http.StatusBadRequest)
			return
		}

		q := r.URL.Query()
		if !fileurl.Verify(fileID, q.Get("expires"), q.Get("sig"), signSecret) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		filename, mimeType, reader, err := handler.OpenFile(fileID)
		if err != nil {
			log.Error("failed to open file",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer reader.Close()

		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))

		if _, err := io.Copy(w, reader); err != nil {
			log.Error("failed to stream file",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
		}
	}
}
