package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/protocol-bank/wallet-onboarding/internal/eventbus"
	"github.com/protocol-bank/wallet-onboarding/internal/httpapi"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/cache"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/config"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/health"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/logging"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/secrets"
	"github.com/protocol-bank/wallet-onboarding/internal/wallet"
)

func main() {
	logging.Init("wallet-service")

	cfg, err := config.LoadWallet()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log.Info().Str("env", cfg.Environment).Msg("starting wallet service")

	mnemonic, err := secrets.Resolve(cfg.Mnemonic, cfg.MnemonicEncrypted, cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve mnemonic")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := wallet.NewRepository(ctx, cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	defer repo.Close()

	sharedCache := cache.New(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	allocator := wallet.NewAllocator(repo, sharedCache)
	producer := eventbus.NewProducer(cfg.KafkaBootstrapServers)
	defer producer.Close()

	core := wallet.NewCore(repo, allocator, wallet.Generators(), producer, cfg.WalletCreatedTopic,
		mnemonic, sharedCache, cfg.CacheTTLSeconds, cfg.MaxConcurrentGenerations)

	handler, err := wallet.NewHandler(core)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event handler")
	}

	consumer := eventbus.NewConsumer(eventbus.ConsumerConfig{
		Brokers:             cfg.KafkaBootstrapServers,
		Topic:               cfg.UserVerifiedTopic,
		GroupID:             cfg.KafkaConsumerGroup,
		BatchProcessingSize: cfg.BatchProcessingSize,
		PollTimeout:         time.Duration(cfg.ConsumerPollTimeoutMS) * time.Millisecond,
	})

	var consumerRunning int32
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		atomic.StoreInt32(&consumerRunning, 1)
		defer atomic.StoreInt32(&consumerRunning, 0)
		if err := consumer.Run(ctx, handler.HandleUserVerified); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	checker := health.NewChecker("wallet-service")
	checker.Register("database", health.PingCheck(repo.Ping))
	checker.Register("cache", func(context.Context) health.CheckResult {
		return health.CheckResult{Status: health.StatusHealthy, Message: fmt.Sprintf("%d entries", sharedCache.Len())}
	})
	checker.Register("kafka_consumer", func(context.Context) health.CheckResult {
		if atomic.LoadInt32(&consumerRunning) == 1 {
			return health.CheckResult{Status: health.StatusHealthy}
		}
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "consumer loop not running"}
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	handlers := httpapi.NewWalletHandlers(core, sharedCache)
	r.Get("/health", checker.HTTPHandler())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/wallet/{user_id}", handlers.HandleGetWallet)
	r.Get("/internal/cache/stats", handlers.HandleCacheStats)

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

	cancel() // cancels the consumer loop and drains in-flight dispatch
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("consumer loop did not stop before shutdown timeout")
	}
	log.Info().Msg("wallet service stopped")
}
