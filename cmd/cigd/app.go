package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/config"
	"github.com/agrilink/cig-engine/cycle"
	"github.com/agrilink/cig-engine/logging"
	"github.com/agrilink/cig-engine/metrics"
	"github.com/agrilink/cig-engine/store/postgres"
	"github.com/agrilink/cig-engine/store/sqldb"
	"github.com/agrilink/cig-engine/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *sqldb.Store
	registry *prometheus.Registry
	assigner *cig.Assigner
	roller   *cycle.Roller
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.driver != "" {
		cfg.Database.Driver = flags.driver
	}
	if flags.dsn != "" {
		cfg.Database.DSN = flags.dsn
	}
	if flags.debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(store.DB(), cfg.Database.Driver),
	)
	rec := metrics.NewPrometheus(reg, "cig")

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: reg,
		assigner: cig.NewAssigner(store,
			cig.WithLogger(logger.Named("assigner")),
			cig.WithMetrics(rec),
			cig.WithBatchTimeout(cfg.Assignment.BatchTimeout.Std())),
		roller: cycle.New(store, cfg.Cycle.Calendar(),
			cycle.WithLogger(logger.Named("cycle")),
			cycle.WithMetrics(rec)),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	a.logger.Sync()
}

// openStore picks the backend from the configured driver.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqldb.Store, error) {
	opts := []sqldb.Option{sqldb.WithLogger(logger.Named("store"))}

	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DSN, postgres.Pool{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		}, opts...)
	case config.DriverSQLite, config.DriverSQLitePure:
		if cfg.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(ctx, cfg.Driver, cfg.DSN, opts...)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
