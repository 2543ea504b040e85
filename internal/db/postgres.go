package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// ConnectPostgres opens a pool and pings it before returning. Pool sizing from
// the DSN (pool_max_conns, pool_min_conns) wins over the defaults here. Queries
// are traced through logger at debug level; slower or failed ones surface as
// warnings and errors.
func ConnectPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if !strings.Contains(dsn, "pool_max_conns") {
		cfg.MaxConns = 10
	}
	if !strings.Contains(dsn, "pool_min_conns") {
		cfg.MinConns = 1
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pgLogger := logger.With().Str("component", "postgres").Logger()
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger(pgLogger),
		LogLevel: traceLevel(pgLogger.GetLevel()),
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

func queryLogger(logger zerolog.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		var ev *zerolog.Event
		switch level {
		case tracelog.LogLevelError:
			ev = logger.Error()
		case tracelog.LogLevelWarn:
			ev = logger.Warn()
		case tracelog.LogLevelInfo:
			ev = logger.Info()
		default:
			ev = logger.Debug()
		}
		ev.Fields(data).Msg(msg)
	})
}

// traceLevel keeps pgx from building log data zerolog would drop anyway.
func traceLevel(l zerolog.Level) tracelog.LogLevel {
	switch {
	case l <= zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	case l == zerolog.InfoLevel:
		return tracelog.LogLevelInfo
	case l == zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	default:
		return tracelog.LogLevelError
	}
}
