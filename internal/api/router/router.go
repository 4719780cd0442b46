// Package router wires the HTTP surface: public webhook/health/metrics
// endpoints and the JWT-protected conversation API.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bookline-ai/bookline/internal/conversation"
	httpmiddleware "github.com/bookline-ai/bookline/internal/http/middleware"
	"github.com/bookline-ai/bookline/internal/reconcile"
	"github.com/bookline-ai/bookline/pkg/logging"
)

// Pinger is a health-checkable dependency (pgx pool, redis client).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebhookHandler      *reconcile.Handler
	MetricsHandler      http.Handler
	AuthSecret          string
	CORSAllowedOrigins  []string

	// Health check dependencies (optional).
	DB    Pinger
	Redis Pinger
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: the scheduling webhook trusts payload content, not
	// caller identity.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg))
		if cfg.WebhookHandler != nil {
			public.Post("/webhooks/scheduling/status", cfg.WebhookHandler.HandleStatusChange)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated API.
	if cfg.ConversationHandler != nil {
		r.Group(func(private chi.Router) {
			private.Use(httpmiddleware.UserJWT(cfg.AuthSecret))

			private.Route("/conversations", func(c chi.Router) {
				c.Post("/start", cfg.ConversationHandler.StartConversation)
				c.Post("/new", cfg.ConversationHandler.NewConversation)
				c.Get("/active", cfg.ConversationHandler.ActiveConversation)
				c.Post("/message", cfg.ConversationHandler.SendMessage)
				c.Get("/{conversationID}/messages", cfg.ConversationHandler.ListMessages)
				c.Get("/{conversationID}/draft", cfg.ConversationHandler.GetDraft)
			})
			private.Route("/drafts/{draftID}", func(d chi.Router) {
				d.Post("/submit", cfg.ConversationHandler.SubmitDraft)
				d.Post("/cancel", cfg.ConversationHandler.CancelDraft)
			})
			private.Get("/booking-options", cfg.ConversationHandler.BookingOptions)
			private.Get("/ws", cfg.ConversationHandler.Events)
		})
	}

	return r
}

func healthHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if cfg.DB != nil {
			if err := cfg.DB.Ping(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if cfg.Redis != nil {
			if err := cfg.Redis.Ping(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
