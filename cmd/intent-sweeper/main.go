package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/db"
	"github.com/saifyeddes/GestionClinic-sub000/internal/events"
	"github.com/saifyeddes/GestionClinic-sub000/internal/logging"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
	redisclient "github.com/saifyeddes/GestionClinic-sub000/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "intent-sweeper")
	logger.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("intent_ttl", cfg.IntentTTL).
		Msg("intent sweeper starting up")

	if cfg.PaymentProvider == config.ProviderMemory {
		logger.Warn().Msg("memory payment provider holds no sessions in this process; every lookup will fail")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	sink := events.Sink(events.NewPgSink(pgPool))
	if cfg.AMQPURL != "" {
		amqpSink, err := events.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq connection error")
		}
		defer amqpSink.Close()
		sink = events.Multi(sink, amqpSink)
	}

	provider, err := payment.NewProvider(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment provider error")
	}

	engine := payment.NewEngine(
		payment.NewPgRepository(pgPool),
		appointment.NewPgRepository(pgPool),
		provider,
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		sink,
		cfg,
		logger,
	)

	// Run once at startup
	runOnce(rootCtx, engine, cfg.IntentTTL, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping intent sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine, cfg.IntentTTL, logger)
		}
	}
}

func runOnce(ctx context.Context, engine *payment.Engine, ttl time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	report, err := engine.ExpireStale(runCtx, ttl)
	if err != nil {
		logger.Error().Err(err).Msg("sweep run error")
		return
	}
	logger.Info().
		Int("checked", report.Checked).
		Int("reconciled", report.Reconciled).
		Int("expired", report.Expired).
		Int("failed", report.Failed).
		Dur("took", time.Since(start)).
		Msg("sweep run complete")
}
