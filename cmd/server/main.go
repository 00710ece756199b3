// Package main is the entry point for the todo API server.
//
// main is kept minimal. Its job is to:
//  1. read configuration (environment, optionally seeded from .env)
//  2. create infrastructure (logger, database, optional Redis and broker)
//  3. hand everything to internal/server and block until shutdown
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, internal/service, ...).
package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/sakif/todo-api/internal/config"
	"github.com/sakif/todo-api/internal/events"
	"github.com/sakif/todo-api/internal/logger"
	"github.com/sakif/todo-api/internal/redisclient"
	"github.com/sakif/todo-api/internal/repository/sqlstore"
	"github.com/sakif/todo-api/internal/server"
)

func main() {
	if err := run(context.Background()); err != nil {
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred Close calls always happen.
func run(ctx context.Context) error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(ctx)
	if err != nil {
		// No configured logger yet; fall back to a plain JSON one.
		l := logger.New(logger.Options{Output: os.Stderr})
		l.Error().Err(err).Msg("invalid configuration")
		return err
	}

	// === 2. LOGGING ===
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	// === 3. DATABASE ===
	// DATABASE_URL picks the driver: sqlite (default), postgres or mysql.
	// Open also creates the schema if it does not exist.
	db, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		return err
	}
	defer db.Close()
	log.Info().Str("dialect", db.Dialect()).Msg("database ready")

	// === 4. REDIS (optional) ===
	// Without Redis the server runs with rate limiting disabled.
	deps := server.Deps{DB: db}
	rdb, err := redisclient.Connect(ctx, cfg.Redis)
	switch {
	case errors.Is(err, redisclient.ErrDisabled):
		log.Info().Msg("REDIS_ADDR not set, rate limiting disabled")
	case err != nil:
		log.Warn().Err(err).Msg("redis unavailable, rate limiting disabled")
	default:
		defer rdb.Close()
		deps.Redis = rdb
	}

	// === 5. TASK EVENTS (optional) ===
	deps.Publisher = newPublisher(cfg, log)
	if closer, ok := deps.Publisher.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// === 6. SERVE ===
	srv, err := server.New(cfg, log, deps)
	if err != nil {
		log.Error().Err(err).Msg("failed to create server")
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("server error")
		return err
	}
	return nil
}

// newPublisher dials the broker when AMQP_URL is set. A broker that is
// down at startup only disables events; it never stops the API.
func newPublisher(cfg *config.Config, log zerolog.Logger) events.Publisher {
	if cfg.AMQP.URL == "" {
		log.Info().Msg("AMQP_URL not set, task events disabled")
		return events.Nop{}
	}

	pub, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
	if err != nil {
		log.Warn().Err(err).Msg("broker unavailable, task events disabled")
		return events.Nop{}
	}
	log.Info().Str("queue", cfg.AMQP.Queue).Msg("publishing task events")
	return pub
}
