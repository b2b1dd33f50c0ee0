package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"example.com/timesheet/internal/api"
	"example.com/timesheet/internal/auth"
	"example.com/timesheet/internal/config"
	"example.com/timesheet/internal/guard"
	"example.com/timesheet/internal/realtime"
	"example.com/timesheet/internal/session"
	httptransport "example.com/timesheet/internal/transport/http"
)

func main() {
	cfg := config.Load()
	fs := pflag.NewFlagSet("timesheet-api", pflag.ExitOnError)
	cfg.BindFlags(fs)
	_ = fs.Parse(os.Args[1:])

	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("timesheet-api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	locker := guard.New()
	registry := realtime.NewRegistry(logger)
	broadcaster := realtime.NewBroadcaster(registry, store, locker, realtime.BroadcasterConfig{
		ResyncInterval: cfg.ResyncInterval,
		StoreTimeout:   cfg.StoreTimeout,
		Logger:         logger,
	})
	manager := session.NewManager(store, store, locker, broadcaster, session.Config{
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})

	handler := api.NewHandler(manager, broadcaster, api.Config{
		ChannelBuffer: cfg.ChannelBuffer,
		WriteTimeout:  cfg.ChannelWriteTimeout,
		AllowedOrigin: cfg.CORSOrigin,
		Logger:        logger,
	})
	routerCfg := api.RouterConfig{
		Auth:       auth.NewMiddleware(auth.NewVerifier(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}), api.PublicPath),
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logger,
	}
	if cfg.MetricsAddress == "" {
		routerCfg.Metrics = promhttp.Handler()
	} else {
		metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
			Address:           cfg.MetricsAddress,
			ReadHeaderTimeout: 5 * time.Second,
			Logger:            logger,
		}, promhttp.Handler())
		go func() {
			if err := metricsSrv.ListenAndServe(ctx); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	go broadcaster.Run(ctx)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:           cfg.HTTPAddress,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		Logger:            logger,
	}, api.NewRouter(handler, routerCfg))
	server.RegisterOnShutdown(broadcaster.Close)

	logger.Info("timesheet-api starting", "address", cfg.HTTPAddress, "store", cfg.StoreDriver)
	err = server.ListenAndServe(ctx)
	// Background workers drain on cancellation before the store closes.
	stop()
	return err
}
