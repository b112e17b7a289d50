package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/citmax/maxxi-live/billing"
	"github.com/citmax/maxxi-live/config"
	"github.com/citmax/maxxi-live/deezer"
	"github.com/citmax/maxxi-live/functions"
	"github.com/citmax/maxxi-live/gemini"
	"github.com/citmax/maxxi-live/metrics"
	"github.com/citmax/maxxi-live/server"
	"github.com/citmax/maxxi-live/session"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := connectRedis(ctx, cfg)

	billingOpts := billing.Options{
		BaseURL:   cfg.SGPBaseURL,
		URAURL:    cfg.SGPURAURL,
		RadiusURL: cfg.SGPRadiusURL,
		App:       cfg.SGPApp,
		Token:     cfg.SGPToken,
		Timeout:   cfg.HTTPTimeout,
	}
	if rdb != nil {
		billingOpts.Cache = billing.NewRedisCache(rdb, cfg.InvoiceCacheTTL)
	}

	m := metrics.New("maxxi")
	tools := functions.NewDispatcher(
		billing.NewClient(billingOpts),
		deezer.NewClient(cfg.DeezerBaseURL, cfg.HTTPTimeout),
		m,
	)

	dialer, err := gemini.NewDialer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	sessionManager := session.NewManager(cfg, rdb, dialer, tools, m)
	go sessionManager.StartCleanupRoutine(ctx)

	srv := server.NewServerWebsocket(ctx, cfg, sessionManager, m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info().Msg("Server stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown LOG_LEVEL, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

// connectRedis returns nil when Redis is unreachable; sessions are then
// tracked in memory only and invoices are not cached.
func connectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisURL).Msg("⚠️ Redis unavailable, continuing without it")
		_ = rdb.Close()
		return nil
	}
	log.Info().Str("addr", cfg.RedisURL).Msg("✅ Connected to Redis")
	return rdb
}
