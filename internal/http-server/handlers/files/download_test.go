package files

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"OmniHub/internal/lib/fileurl"
)

type fakeCore struct {
	content string
	openErr error
}

func (f *fakeCore) OpenFile(fileID string) (string, string, io.ReadCloser, error) {
	if f.openErr != nil {
		return "", "", nil, f.openErr
	}
	return "picture.jpg", "image/jpeg", io.NopCloser(strings.NewReader(f.content)), nil
}

func testRouter(core Core) *chi.Mux {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	router.Get("/v1/files/{id}", Download(log, core, "secret"))
	return router
}

func TestDownloadServesSignedURL(t *testing.T) {
	router := testRouter(&fakeCore{content: "binary"})

	signed := fileurl.SignURL("abc123", "secret", time.Minute)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "binary" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestDownloadRejectsBadSignature(t *testing.T) {
	router := testRouter(&fakeCore{content: "binary"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/files/abc123?expires=9999999999&sig=deadbeef", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestDownloadRejectsExpiredURL(t *testing.T) {
	router := testRouter(&fakeCore{content: "binary"})

	signed := fileurl.SignURL("abc123", "secret", -time.Minute)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed, nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestDownloadUnknownFile(t *testing.T) {
	router := testRouter(&fakeCore{openErr: fmt.Errorf("no documents")})

	signed := fileurl.SignURL("missing", "secret", time.Minute)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed, nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
