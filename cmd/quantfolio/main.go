package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quantfolio/internal/api"
	"quantfolio/internal/config"
	"quantfolio/internal/logger"
	"quantfolio/internal/market"
	"quantfolio/internal/monitoring"
	"quantfolio/internal/scheduler"
	"quantfolio/internal/storage"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog := logger.New(cfg.Logging)
	appLog.WithFields(map[string]interface{}{
		"version": cfg.App.Version,
		"env":     cfg.App.Env,
	}).Info("starting quantfolio")

	metrics := monitoring.NewMetrics()

	// Storage is optional; the analytics endpoints work without it.
	db, err := storage.NewConnection(&storage.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxOpen:  cfg.Database.MaxOpen,
		MaxIdle:  cfg.Database.MaxIdle,
		Timeout:  cfg.Database.Timeout,
	})
	if err != nil {
		appLog.WithError(err).Warn("database unavailable, portfolio persistence disabled")
		db = nil
	}

	var provider market.Provider
	if cfg.MarketData.BaseURL != "" {
		client := market.NewClient(market.ClientConfig{
			BaseURL:           cfg.MarketData.BaseURL,
			APIKey:            cfg.MarketData.APIKey,
			Timeout:           cfg.MarketData.Timeout,
			RequestsPerSecond: cfg.MarketData.RequestsPerSecond,
		})
		provider = market.NewCachedProvider(client, market.CacheConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TTL:      cfg.MarketData.CacheTTL,
		}, metrics, appLog.WithComponent("market"))
	} else {
		appLog.Warn("market data base URL not configured, candle endpoints disabled")
	}

	server := api.NewServer(cfg, api.Deps{
		DB:       db,
		Provider: provider,
		Metrics:  metrics,
		Log:      appLog,
	})

	var refresher *scheduler.Scheduler
	if cfg.Scheduler.Enabled && db != nil && provider != nil {
		refresher, err = scheduler.New(db, provider, metrics, appLog, scheduler.Config{
			RefreshSpec: cfg.Scheduler.RefreshSpec,
			Lookback:    cfg.Scheduler.Lookback,
		})
		if err != nil {
			appLog.WithError(err).Fatal("failed to create refresh scheduler")
		}
		refresher.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLog.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			appLog.WithError(err).Error("server error")
		}
	}

	if refresher != nil {
		refresher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		appLog.WithError(err).Error("shutdown failed")
	}
	if db != nil {
		if err := db.Close(); err != nil {
			appLog.WithError(err).Error("failed to close database")
		}
	}
	appLog.Info("quantfolio stopped")
}
