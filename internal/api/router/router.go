// Package router assembles the HTTP surface: public conversation routes,
// the JWT-protected admin group and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bookwell/booking-assistant/internal/conversation"
	httpmiddleware "github.com/bookwell/booking-assistant/internal/http/middleware"
	"github.com/bookwell/booking-assistant/internal/webchat"
	"github.com/bookwell/booking-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebchatHandler      *webchat.Handler
	MetricsHandler      http.Handler
	AdminAuthSecret     string
	CORSAllowedOrigins  []string
	ReadyCheck          func() error

	// Requests per second per client IP on the public conversation routes.
	// Zero disables rate limiting.
	RateLimit      float64
	RateLimitBurst int
}

// New creates a Chi router with all routes configured.
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

	// Operational endpoints.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if cfg.ReadyCheck != nil {
			if err := cfg.ReadyCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public conversation routes.
	r.Group(func(public chi.Router) {
		if cfg.RateLimit > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.RateLimit, cfg.RateLimitBurst))
		}
		public.Post("/conversation/start", cfg.ConversationHandler.StartConversation)
		public.Post("/conversation/{sessionID}/message", cfg.ConversationHandler.PostMessage)
		public.Get("/conversation/{sessionID}", cfg.ConversationHandler.GetConversation)
		public.Get("/available-slots", cfg.ConversationHandler.AvailableSlots)

		if cfg.WebchatHandler != nil {
			public.Get("/webchat/ws", cfg.WebchatHandler.HandleWebSocket)
		}
	})

	// Admin routes, JWT protected.
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		admin.Get("/sessions", cfg.ConversationHandler.AdminListSessions)
		admin.Get("/status", cfg.ConversationHandler.AdminStatus)
		admin.Post("/cleanup", cfg.ConversationHandler.AdminCleanup)
	})

	return r
}
