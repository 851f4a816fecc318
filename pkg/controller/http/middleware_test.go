package http_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/gt"
	server "github.com/secmon-lab/tollgate/pkg/controller/http"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	t.Run("recover from panic", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(server.PanicRecoveryMiddleware)

		r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		rec := httptest.NewRecorder()

		r.ServeHTTP(rec, req)

		gt.Value(t, rec.Code).Equal(http.StatusInternalServerError)
		gt.S(t, rec.Body.String()).NotContains("test panic")
	})
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.New(&buf, slog.LevelDebug, logging.FormatJSON, false)
			h.ServeHTTP(w, r.WithContext(logging.With(r.Context(), logger)))
		})
	})
	r.Use(server.LoggingMiddleware)

	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=a%40b.com&password=Secret1%21"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", "token_secret=very-secret-value")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	gt.S(t, buf.String()).Contains(`"method":"POST"`)
	gt.S(t, buf.String()).Contains(`"path":"/login"`)
	gt.S(t, buf.String()).Contains(`"status":303`)
	gt.S(t, buf.String()).Contains(`"request_id":`)
	gt.S(t, buf.String()).NotContains(`Secret1`)
	gt.S(t, buf.String()).NotContains(`very-secret-value`)
}
