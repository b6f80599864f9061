package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/database"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/metrics"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/publisher"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/server"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/service"
	"github.com/kuretru/Xiaozhi-HASS-Gateway/internal/setup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config := loadConfig()
	logger, err := newLogger(config.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Build logger failed, %v", err)
		os.Exit(3)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := database.NewRegistry(logger)
	store := database.NewStore(config.Store.Path)
	dispatcher := service.NewDispatcher(registry, logger)
	httpClient := &http.Client{Timeout: config.HTTPClient.Timeout}

	var announcer setup.Announcer
	if len(config.Publishers) > 0 {
		if err = publisher.Init(ctx, config.Publishers, publisher.Environment{
			Registry:   registry,
			Dispatcher: dispatcher,
			Logger:     logger,
		}); err != nil {
			logger.Error("Gateway: init publishers failed", zap.Error(err))
			os.Exit(1)
		}
		announcer = publisher.Broadcaster{}
	} else {
		logger.Warn("Gateway: no publisher configured, entities are only reachable over the admin api")
	}

	flow := setup.NewFlow(httpClient, registry, store, announcer, logger)
	for _, device := range config.Devices {
		flow.SetupEntry(ctx, device)
	}
	entries, err := store.Load()
	if err != nil {
		logger.Error("Gateway: load stored entries failed", zap.String("path", config.Store.Path), zap.Error(err))
	}
	for _, entry := range entries {
		if registry.Contains(ctx, entry.DeviceID) {
			logger.Info("Gateway: stored entry shadowed by config", zap.String("deviceId", entry.DeviceID))
			continue
		}
		flow.SetupEntry(ctx, entry)
	}

	adminServer := server.New(flow, registry, dispatcher, metrics.NewRegistry(), logger)
	adminServer.Start(config.Server.Listen)
	logger.Info("Gateway: started", zap.Int("devices", len(registry.All(ctx))))

	<-ctx.Done()
	logger.Info("Gateway: received shutdown signal, exiting gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	adminServer.Shutdown(shutdownCtx)
	publisher.Stop(shutdownCtx)
}

func loadConfig() *Config {
	configFilePath := flag.String("config", "./configs/gateway.yaml", "Config file path")
	flag.Parse()
	if configFilePath == nil || *configFilePath == "" {
		_, _ = fmt.Fprintf(os.Stderr, "Config file not provide")
		os.Exit(2)
	}
	if _, err := os.Stat(*configFilePath); err != nil {
		if os.IsNotExist(err) {
			_, _ = fmt.Fprintf(os.Stderr, "Config file not exist")
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "Stat config file failed, %v", err)
		}
		os.Exit(3)
	}

	configBytes, err := os.ReadFile(*configFilePath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Read config file failed, %v", err)
		os.Exit(3)
	}
	config, err := parseConfig(configBytes)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(3)
	}
	if err = config.applyEnv(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(3)
	}
	if err = config.validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Invalid config, %v", err)
		os.Exit(3)
	}
	return config
}
