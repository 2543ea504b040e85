package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/api"
	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/db"
	"github.com/saifyeddes/GestionClinic-sub000/internal/events"
	"github.com/saifyeddes/GestionClinic-sub000/internal/logging"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
	redisclient "github.com/saifyeddes/GestionClinic-sub000/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
	if err == nil {
		err = db.Migrate(pgCtx, pgPool)
	}
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres setup error")
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

	checks := readinessChecks(pgPool.Ping, redisclient.Ping(rdb))

	sinks := []events.Sink{events.NewPgSink(pgPool)}
	if cfg.AMQPURL != "" {
		amqpSink, err := events.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq connection error")
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
		checks = append(checks, api.Check{Name: "amqp", Critical: false, Ping: amqpSink.Ping})
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to RabbitMQ")
	}
	sink := events.Multi(sinks...)

	provider, err := payment.NewProvider(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment provider error")
	}

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	appts := appointment.NewPgRepository(pgPool)

	svc := appointment.NewService(appts, locker, sink, cfg, logger)
	engine := payment.NewEngine(payment.NewPgRepository(pgPool), appts, provider, locker, sink, cfg, logger)
	resolver := auth.NewResolver(auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer), auth.NewPgAccountStore(pgPool), cfg.StoreTimeout, logger)

	handler := api.NewRouter(api.RouterConfig{
		Appointments: svc,
		Payments:     engine,
		Resolver:     resolver,
		Checks:       checks,
		Logger:       logger,
		Location:     cfg.Location(),
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("api-server stopped")
}

// readinessChecks lists the dependencies /ready reports on. Redis holds the
// slot locks every mutation takes, so it is as critical as Postgres.
func readinessChecks(pg, rdb func(context.Context) error) []api.Check {
	return []api.Check{
		{Name: "postgres", Critical: true, Ping: pg},
		{Name: "redis", Critical: true, Ping: rdb},
	}
}
