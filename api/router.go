package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/tfkr-ae/formrelay"
	"github.com/tfkr-ae/formrelay/domain"
)

// Relay is the part of the relay served over HTTP.
type Relay interface {
	Collect(ctx context.Context, req formrelay.Request) (formrelay.Response, error)
	Retry(ctx context.Context, traceID string) (formrelay.Response, error)
	Stats() (formrelay.Stats, error)
}

// Store gives operators read access to unresolved submissions.
type Store interface {
	ListPending() ([]*domain.Submission, error)
	GetPending(traceID string) (*domain.Submission, error)
	GetAttempts(traceID string) ([]*domain.Attempt, error)
}

// Config holds the settings of the HTTP surface.
type Config struct {
	APIKey    string     // Required on the operator routes
	RateLimit rate.Limit // Ingress requests per second, 0 disables limiting
	RateBurst int
	MaxWait   time.Duration // Longest a request waits for the limiter before a 429
}

// New returns the HTTP handler of the relay.
func New(cfg Config, relay Relay, store Store, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	collectH := NewCollectHandler(relay, logger)
	adminH := NewAdminHandler(relay, store, logger)

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, max(cfg.RateBurst, 1))

	r := chi.NewRouter()

	// Global middleware
	r.Use(Recovery(logger))
	r.Use(Logger(logger))

	r.Get("/healthz", Health)

	r.Route("/api/collect", func(r chi.Router) {
		// Public
		r.With(StampReceivedAt, RateLimit(limiter, cfg.MaxWait)).Post("/", collectH.Collect)

		// Operators
		r.Group(func(r chi.Router) {
			r.Use(RequireAPIKey(cfg.APIKey))

			r.Get("/pending", adminH.ListPending)
			r.Get("/pending/{traceID}", adminH.GetPending)
			r.Post("/pending/{traceID}/retry", adminH.Retry)
			r.Get("/stats", adminH.Stats)
		})
	})

	return r
}

// Health reports that the process is serving.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
