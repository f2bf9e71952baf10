package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/justsurfingit/nextsteps/internal/config"
	"github.com/justsurfingit/nextsteps/internal/database"
	"github.com/justsurfingit/nextsteps/internal/logger"
	"github.com/justsurfingit/nextsteps/internal/metrics"
	"github.com/justsurfingit/nextsteps/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *gorm.DB
	registry *prometheus.Registry

	mail      *services.EmailService
	scan      *services.ScanService
	jobs      *services.JobService
	users     *services.UserService
	analytics *services.AnalyticsService
}

// loadApp reads config, connects and migrates the database. Services that
// need the language model are built by withScan.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)
	log.Info("connecting to database", slog.String("host", cfg.MaskedDatabaseHost()))

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		registry:  reg,
		mail:      services.NewEmailService(log, cfg.GmailRPS),
		jobs:      services.NewJobService(db, log),
		users:     services.NewUserService(db, collector, log),
		analytics: services.NewAnalyticsService(db),
	}, nil
}

// withScan builds the extraction and scan pipeline.
func (a *app) withScan(ctx context.Context) error {
	gen, err := services.NewGenerator(ctx, a.cfg.LLMProvider, a.cfg.GeminiAPIKey, a.cfg.LLMModel)
	if err != nil {
		return fmt.Errorf("configure LLM: %w", err)
	}
	llm, err := services.NewLLMService(gen, a.log)
	if err != nil {
		return err
	}

	a.scan = services.NewScanService(
		a.mail,
		llm,
		services.NewGormRecordStore(a.db),
		a.users.Metrics,
		services.ScanOptions{
			MaxResults: a.cfg.ScanMaxResults,
			WindowDays: a.cfg.ScanWindowDays,
			BodyLimit:  a.cfg.ScanBodyLimit,
			Timeout:    a.cfg.ScanTimeout,
		},
		a.log,
	)
	return nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
