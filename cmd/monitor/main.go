// Package main is the entry point for the monitor service: it wires the
// crawl/webhook pipeline together and runs it alongside the operator
// control surface until terminated.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obsrv/monitor/internal/config"
	"github.com/obsrv/monitor/internal/crypto"
	"github.com/obsrv/monitor/internal/database"
	"github.com/obsrv/monitor/internal/fetch"
	"github.com/obsrv/monitor/internal/history"
	"github.com/obsrv/monitor/internal/httpapi"
	"github.com/obsrv/monitor/internal/logging"
	"github.com/obsrv/monitor/internal/repository"
	"github.com/obsrv/monitor/internal/scheduler"
	"github.com/obsrv/monitor/internal/storage"
	"github.com/obsrv/monitor/internal/version"
	"github.com/obsrv/monitor/internal/webhook"
)

const shutdownGracePeriod = 30 * time.Second

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting monitor",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	repos := repository.NewRepositories(db)

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize webhook secret encryptor", "error", err)
		os.Exit(1)
	}

	fetcher := fetch.New(fetch.Config{
		RateLimitPerDomainPerMinute: cfg.CrawlRateLimitPerDomain,
		Timeout:                     cfg.DefaultCrawlTimeout,
		RetryAttempts:               cfg.CrawlRetryAttempts,
		RetryBackoffBase:            cfg.CrawlRetryBackoffBase,
		UserAgent:                   cfg.CrawlUserAgent,
	})

	archiver, err := storage.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize raw-HTML archiver", "error", err)
		os.Exit(1)
	}
	if archiver.Enabled() {
		logger.Info("raw-HTML archival enabled", "bucket", cfg.StorageBucket)
	}

	historyWriter := history.New(repos, archiver)

	signer := webhook.NewSigner(time.Duration(cfg.WebhookSignatureToleranceSeconds) * time.Second)
	deliverer := webhook.NewDeliverer(signer, repos.WebhookLog, cfg.WebhookTimeout, logger)

	sched := scheduler.New(repos, fetcher, historyWriter, deliverer, encryptor, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	router := httpapi.NewRouter(cfg, repos, sched, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down")
		cancel()
		sched.Stop(shutdownGracePeriod)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("operator control surface listening", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("monitor stopped")
}
