package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lightsout/go/internal/config"
	"github.com/mcdev12/lightsout/go/internal/registry"
)

// setupRepository opens the configured score store. The returned func
// releases it.
func setupRepository(ctx context.Context, cfg *config.Config) (registry.ScoreRepository, func(), error) {
	if cfg.Registry.Store == config.StoreSQLite {
		repo, err := registry.OpenSQLiteRepository(ctx, cfg.Registry.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().
			Str("path", cfg.Registry.SQLitePath).
			Msg("using sqlite score store, registry events are not streamed")
		return repo, func() { repo.Close() }, nil
	}

	pool, err := setupDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return registry.NewRepository(pool), pool.Close, nil
}

func setupDatabase(ctx context.Context, dbConfig config.DatabaseConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := registry.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("user", dbConfig.User).
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Name).
		Msg("connected to database")
	return pool, nil
}
