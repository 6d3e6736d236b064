package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bookwell/booking-assistant/internal/api/router"
	"github.com/bookwell/booking-assistant/internal/cache"
	"github.com/bookwell/booking-assistant/internal/calendar"
	appconfig "github.com/bookwell/booking-assistant/internal/config"
	"github.com/bookwell/booking-assistant/internal/conversation"
	"github.com/bookwell/booking-assistant/internal/llm"
	"github.com/bookwell/booking-assistant/internal/notify"
	"github.com/bookwell/booking-assistant/internal/observability/metrics"
	"github.com/bookwell/booking-assistant/internal/webchat"
	"github.com/bookwell/booking-assistant/pkg/logging"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	m := metrics.NewConversationMetrics(nil)
	ctx := context.Background()

	// Session storage.
	var store conversation.SessionStore
	var redisClient *redis.Client
	if cfg.SessionBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Error("redis unreachable", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		cancel()
		store = conversation.NewRedisStore(redisClient, cfg.SessionTTL)
		logger.Info("using redis session store", "addr", cfg.RedisAddr)
	} else {
		store = conversation.NewMemoryStore(cfg.SessionTTL)
		logger.Info("using in-memory session store")
	}

	// Optional long-term transcript persistence.
	var transcripts *conversation.TranscriptStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		transcripts = conversation.NewTranscriptStore(db)
		logger.Info("transcript persistence enabled")
	}

	provider := buildProvider(ctx, cfg, logger, m)
	cal := buildCalendar(ctx, cfg, logger)

	var emailer notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailer = sg
	} else {
		emailer = notify.NewStubEmailSender(logger)
	}

	extractCache := cache.New(cache.WithTTL(cfg.CacheTTL), cache.WithObserver(m))

	svc := conversation.NewService(store, extractCache, provider, cal, emailer, transcripts, m, logger,
		conversation.ServiceConfig{
			ExtractTimeout:  cfg.ExtractTimeout,
			ExtractWorkers:  cfg.ExtractWorkers,
			DefaultDuration: cfg.DefaultDurationMins,
		})

	// Evict expired sessions and sweep the analysis cache in the background.
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if removed, err := svc.CleanupExpired(cleanupCtx); err != nil {
					logger.Warn("session cleanup failed", "error", err)
				} else if removed > 0 {
					logger.Info("expired sessions removed", "count", removed)
				}
			}
		}
	}()

	readyCheck := func() error {
		if redisClient != nil {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(pingCtx).Err()
		}
		return nil
	}

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(svc, logger),
		WebchatHandler:      webchat.NewHandler(svc, logger),
		MetricsHandler:      promhttp.Handler(),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		ReadyCheck:          readyCheck,
		RateLimit:           5,
		RateLimitBurst:      10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildProvider selects the configured LLM provider, wrapping real backends
// with a heuristic fallback so the assistant keeps answering offline.
func buildProvider(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.ConversationMetrics) llm.Provider {
	mock := llm.NewMockProvider()
	withFallback := func(p llm.Provider) llm.Provider {
		return llm.NewFallbackProvider(p, mock, logger, m.ProviderFallback)
	}

	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, falling back to mock provider")
			return mock
		}
		return withFallback(llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			logger.Warn("ANTHROPIC_API_KEY not set, falling back to mock provider")
			return mock
		}
		return withFallback(llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel))
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Warn("GEMINI_API_KEY not set, falling back to mock provider")
			return mock
		}
		p, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("gemini client init failed, using mock provider", "error", err)
			return mock
		}
		return withFallback(p)
	default:
		return mock
	}
}

func buildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) calendar.Calendar {
	if cfg.CalendarBackend == "google" && cfg.GoogleCredentialsFile != "" {
		cal, err := calendar.NewGoogleCalendar(ctx, cfg.GoogleCredentialsFile, cfg.GoogleCalendarID,
			cfg.BusinessOpenHour, cfg.BusinessCloseHour)
		if err != nil {
			logger.Error("google calendar init failed, using mock calendar", "error", err)
			return calendar.NewMockCalendar(cfg.BusinessOpenHour, cfg.BusinessCloseHour)
		}
		logger.Info("using google calendar", "calendar_id", cfg.GoogleCalendarID)
		return cal
	}
	return calendar.NewMockCalendar(cfg.BusinessOpenHour, cfg.BusinessCloseHour)
}
