package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/protocol-bank/wallet-onboarding/internal/eventbus"
	"github.com/protocol-bank/wallet-onboarding/internal/httpapi"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/config"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/health"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/httpmw"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/logging"
	"github.com/protocol-bank/wallet-onboarding/internal/verification"
)

func main() {
	logging.Init("verification-service")

	cfg, err := config.LoadVerification()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.Info().Str("env", cfg.Environment).Msg("starting verification service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := verification.NewRepository(ctx, cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	defer repo.Close()

	producer := eventbus.NewProducer(cfg.KafkaBootstrapServers)
	defer producer.Close()

	core := verification.NewCore(repo, producer, cfg.UserVerifiedTopic,
		cfg.VerificationDelaySeconds, cfg.MaxDocumentSizeMB, cfg.MaxConcurrentVerifications)

	checker := health.NewChecker("verification-service")
	checker.Register("database", health.PingCheck(repo.Ping))

	limiter := httpmw.NewPerUserLimiter(rate.Limit(5), 10)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	handlers := httpapi.NewVerificationHandlers(core)

	r.Get("/health", checker.HTTPHandler())
	r.Handle("/metrics", promhttp.Handler())
	r.With(limiter.Middleware(func(r *http.Request) string {
		return r.Header.Get("X-User-ID")
	})).Post("/verify", handlers.HandleVerify)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancel()
	log.Info().Msg("verification service stopped")
}
