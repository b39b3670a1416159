// Package web serves the single-page upload and query interface.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/pdf-insight/internal/domain"
	"github.com/spherical/pdf-insight/internal/observability"
)

//go:embed templates/index.html
var templateFS embed.FS

// Interactor is the session flow the handlers drive.
type Interactor interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Upload(ctx context.Context, id, filename string, r io.Reader) (*domain.Session, error)
	Submit(ctx context.Context, id, query string) (*domain.Session, error)
	Reset(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Config holds router settings.
type Config struct {
	MaxUploadBytes int64
	ReadyTimeout   time.Duration
}

// DefaultConfig returns default router settings.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 50 << 20,
		ReadyTimeout:   2 * time.Second,
	}
}

// NewRouter creates the router with all routes configured.
func NewRouter(logger *observability.Logger, interactor Interactor, cfg Config) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultConfig().ReadyTimeout
	}

	h := &Handler{
		logger:         logger.WithOperation("web"),
		interactor:     interactor,
		page:           template.Must(template.ParseFS(templateFS, "templates/index.html")),
		maxUploadBytes: cfg.MaxUploadBytes,
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"pdf-insight"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.ReadyTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := interactor.Ping(ctx); err != nil {
			logger.WithContext(r.Context()).Warn().Err(err).Msg("Session store not ready")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "detail": err.Error()})
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(Session)

		r.Get("/", h.Index)
		r.Post("/upload", h.Upload)
		r.Post("/query", h.Query)
		r.Post("/reset", h.Reset)
	})

	return r
}
