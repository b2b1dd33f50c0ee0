package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timesheet/internal/config"
	"example.com/timesheet/internal/domain"
	"example.com/timesheet/internal/outbox"
	"example.com/timesheet/internal/persistence/memory"
	"example.com/timesheet/internal/persistence/postgres"
	"example.com/timesheet/internal/persistence/sqlite"
)

type timesheetStore interface {
	domain.IntervalStore
	domain.ActivityFinder
}

// openStore selects the store driver. The Postgres store also starts the
// outbox dispatcher, which the returned cleanup drains.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (timesheetStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; timesheets are lost on restart")
		return memory.NewStore(), func() {}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, 0)
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger))
		go dispatcher.Start(ctx)

		cleanup := func() {
			dispatcher.Wait()
			if err := producer.Close(); err != nil {
				logger.Warn("closing kafka producer", "error", err)
			}
			pool.Close()
		}
		return postgres.NewRepository(pool), cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
