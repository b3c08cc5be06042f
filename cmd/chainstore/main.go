package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/pairdb/chainstore/internal/config"
	"github.com/devrev/pairdb/chainstore/internal/database"
	"github.com/devrev/pairdb/chainstore/internal/health"
	"github.com/devrev/pairdb/chainstore/internal/keys"
	"github.com/devrev/pairdb/chainstore/internal/metrics"
	"github.com/devrev/pairdb/chainstore/internal/server"
	"github.com/devrev/pairdb/chainstore/internal/storage/diskmanager"
	"github.com/devrev/pairdb/chainstore/internal/table"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Strings("tables", cfg.Tables))

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	disk, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(cfg.Storage.DataDir), logger)
	if err != nil {
		logger.Fatal("Failed to create disk manager", zap.Error(err))
	}

	db := database.New(&database.Config{
		Dir:          cfg.Storage.DataDir,
		Workers:      cfg.Database.Workers,
		TableOptions: tableOptions(cfg, logger, m, disk),
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Open(ctx, cfg.Tables...); err != nil {
		logger.Fatal("Failed to open tables", zap.Error(err))
	}

	if *cfg.Database.RecoverOnStart {
		version, err := db.Recover(ctx)
		if err != nil {
			logger.Fatal("Failed to recover tables", zap.Error(err))
		}
		logger.Info("Tables recovered", zap.Uint32("version", version))
	}

	checker := health.NewHealthChecker(&health.Config{
		DataDir:  cfg.Storage.DataDir,
		Interval: cfg.Metrics.HealthCheckInterval,
		Disk:     disk,
	}, db, logger)
	go checker.Start(ctx)
	checker.SetReadiness(true)

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{
			Host: cfg.Metrics.Host,
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, registry, checker, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	logger.Info("chainstore node started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	checker.SetReadiness(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Database.ShutdownTimeout)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}
	cancel()

	if err := db.Close(); err != nil {
		logger.Error("Failed to close tables", zap.Error(err))
	}
}

func tableOptions(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, disk *diskmanager.DiskManager) *table.Options {
	var cmp keys.Comparator = keys.LengthFirst{}
	if cfg.Table.Comparator == "lexicographic" {
		cmp = keys.Lexicographic{}
	}
	return &table.Options{
		Comparator:       cmp,
		FlushThreshold:   cfg.Table.FlushThreshold,
		CompactionFactor: cfg.Table.CompactionFactor,
		SyncWrites:       cfg.Table.SyncWrites,
		WALBufferSize:    cfg.Table.WALBufferSize,
		BloomFilterFP:    cfg.Table.BloomFilterFP,
		CacheSize:        cfg.Table.CacheSize,
		MaxKeySize:       cfg.Table.MaxKeySize,
		MaxValueSize:     cfg.Table.MaxValueSize,
		DebugLog:         *cfg.Table.DebugLog,
		Disk:             disk,
		Logger:           logger,
		Metrics:          m,
	}
}

// initLogger initializes the zap logger
func initLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
