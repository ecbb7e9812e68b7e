// CarrierWatch - identity resolution and risk scoring for motor carriers.
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sstransco/carrierwatch/internal/bus"
	"github.com/sstransco/carrierwatch/internal/cache"
	"github.com/sstransco/carrierwatch/internal/domain"
	"github.com/sstransco/carrierwatch/internal/pipeline"
	"github.com/sstransco/carrierwatch/internal/repository"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var (
		phasesFlag = flag.String("phases", "", "comma-separated phases to run (default: all)")
		resetFlag  = flag.Bool("reset", false, "zero the risk ledger before scoring")
		driverFlag = flag.String("db-driver", "", "database driver: sqlite or postgres")
		dbPathFlag = flag.String("db", "", "sqlite database path")
		proFlag    = flag.Bool("pro", false, "use the shared-store stack (postgres, redis, nats)")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("CARRIERWATCH_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting carrierwatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := loadConfig(*proFlag, *driverFlag, *dbPathFlag)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()

	runner := pipeline.NewRunner(store, cacheImpl, busImpl, cfg.Pipeline, logger)
	report, err := runner.Run(ctx, pipeline.Options{
		Phases: splitPhases(*phasesFlag),
		Reset:  *resetFlag,
	})
	if err != nil {
		slog.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		slog.Error("failed to encode run report", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if failed := report.FailedPhases(); len(failed) > 0 {
		slog.Error("run finished with failed phases", "phases", failed)
		os.Exit(1)
	}
}

// loadConfig builds the configuration from tier selection, environment,
// and flags. Flags win over environment, environment over defaults.
func loadConfig(pro bool, driver, dbPath string) *domain.Config {
	cfg := domain.DefaultConfig()
	if pro || os.Getenv("CARRIERWATCH_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in pro tier mode")
	}

	if v := os.Getenv("CARRIERWATCH_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("CARRIERWATCH_DB"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("CARRIERWATCH_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("CARRIERWATCH_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("CARRIERWATCH_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("CARRIERWATCH_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("CARRIERWATCH_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("CARRIERWATCH_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}

	if driver != "" {
		cfg.Repository.Driver = driver
	}
	if dbPath != "" {
		cfg.Repository.SQLitePath = dbPath
	}
	return cfg
}

func splitPhases(s string) []string {
	if s == "" {
		return nil
	}
	var phases []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			phases = append(phases, p)
		}
	}
	return phases
}
