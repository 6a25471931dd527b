package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/dbconfig"
	"github.com/mcdev12/livepoll/go/internal/storage"
	"github.com/mcdev12/livepoll/go/internal/storage/memory"
	"github.com/mcdev12/livepoll/go/internal/storage/migrations"
	"github.com/mcdev12/livepoll/go/internal/storage/postgres"
)

// setupStore opens the configured store. The returned func releases it.
func setupStore(ctx context.Context, cfg *Config) (storage.Store, func(), error) {
	if cfg.Store.Driver == "memory" {
		log.Warn().Msg("using in-memory store, polls will not survive a restart")
		return memory.New(), func() {}, nil
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	dsn := dbCfg.DSN()

	if cfg.Store.MigrateOnStart {
		if err := runMigrations(dsn); err != nil {
			return nil, nil, err
		}
	}

	store, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	go store.MonitorReadiness(ctx, cfg.Store.ReadinessInterval)

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return store, store.Close, nil
}

func runMigrations(dsn string) error {
	m, err := migrations.New(dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
