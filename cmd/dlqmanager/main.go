package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"example.com/timesheet/internal/config"
	"example.com/timesheet/internal/outbox"
	httptransport "example.com/timesheet/internal/transport/http"
)

const (
	defaultDLQBatchSize = 50
)

func main() {
	cfg := config.Load()
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = ":9102"
	}
	fs := pflag.NewFlagSet("timesheet-dlqmanager", pflag.ExitOnError)
	cfg.BindFlags(fs)
	batchSize := fs.Int("batch-size", defaultDLQBatchSize, "DLQ entries handled per poll")
	_ = fs.Parse(os.Args[1:])

	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, *batchSize, logger); err != nil {
		logger.Error("timesheet-dlqmanager exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, batchSize int, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
		Address:           cfg.MetricsAddress,
		ReadHeaderTimeout: 5 * time.Second,
		Logger:            logger,
	}, promhttp.Handler())
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := metricsSrv.ListenAndServe(ctx); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started", "interval", cfg.DLQPollInterval, "max_retries", cfg.DLQMaxRetries)

	for {
		select {
		case <-ctx.Done():
			logger.Info("dlq manager received shutdown signal")
			<-metricsDone
			return nil
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, batchSize)
			if err != nil {
				logger.Error("dlq manager error", "error", err)
			} else if processed > 0 {
				logger.Info("dlq manager processed entries", "count", processed)
			}
		}
	}
}
