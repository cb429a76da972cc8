// Math Tutor - tutoring interaction server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mathtutor/internal/api"
	"github.com/ashureev/mathtutor/internal/chatlog"
	"github.com/ashureev/mathtutor/internal/config"
	"github.com/ashureev/mathtutor/internal/hint"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/inference"
	"github.com/ashureev/mathtutor/internal/middleware"
	"github.com/ashureev/mathtutor/internal/speech"
	"github.com/ashureev/mathtutor/internal/store"
	"github.com/ashureev/mathtutor/internal/tutor"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// sweepInterval is how often idle tutor sessions and hint events are evicted.
const sweepInterval = time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	gateway := inference.NewGateway(cfg.Inference)
	credErr := gateway.CheckCredential()
	if credErr != nil {
		// Not fatal: every chat turn reports the configuration error.
		slog.Warn("Inference credential not usable, chat turns will fail", "reason", inference.ErrorKind(credErr))
	} else {
		slog.Info("Inference gateway configured", "model", cfg.Inference.Model)
	}

	convLog, err := chatlog.Open(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	ctrl := speech.NewController(newSpeechDevice(cfg, credErr, logger), logger)
	defer ctrl.Stop()

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	sessions := tutor.NewRegistry()
	engines := hint.NewRegistry()

	// Initialize handlers.
	maxBody := cfg.Timeout.MaxRequestBytes
	healthHandler := api.NewHealthHandler(repo, gateway, ctrl, cfg.Timeout.HealthCheck)
	chatHandler := api.NewChatHandler(gateway, limiter, convLog, maxBody)
	tutorHandler := api.NewTutorHandler(gateway, sessions, limiter, convLog, maxBody)
	feedbackHandler := api.NewFeedbackHandler(engines, convLog, maxBody)
	speechHandler := api.NewSpeechHandler(ctrl, maxBody, cfg.FrontendURL, cfg.IsDevelopment())
	learnerHandler := api.NewLearnerHandler(repo, maxBody)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	learnerHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	tutorHandler.RegisterRoutes(r)
	feedbackHandler.RegisterRoutes(r)
	speechHandler.RegisterRoutes(r)

	// No WriteTimeout: /ws/speech connections are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartSweeper(ctx, sweepInterval, cfg.SessionTTL)
	engines.StartSweeper(ctx, sweepInterval, cfg.SessionTTL)
	slog.Info("Session sweepers started", "session_ttl", cfg.SessionTTL)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newSpeechDevice returns the playback device, or nil when read-aloud is
// unavailable on this host.
func newSpeechDevice(cfg *config.Config, credErr error, logger *slog.Logger) speech.Device {
	if !cfg.Speech.Enabled {
		slog.Info("Speech disabled by configuration")
		return nil
	}
	if credErr != nil {
		slog.Info("Speech unavailable without an inference credential")
		return nil
	}
	player, ok := speech.DetectPlayer(cfg.Speech.Player)
	if !ok {
		slog.Info("Speech unavailable, no audio player found", "preferred", cfg.Speech.Player)
		return nil
	}
	slog.Info("Speech enabled", "player", player.Name, "voice", cfg.Speech.Voice)
	return speech.NewProcessDevice(speech.NewOpenAISynthesizer(cfg.Inference, cfg.Speech), player, logger)
}
