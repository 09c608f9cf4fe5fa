package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/catalog-admin/internal/app"
	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	jobmetrics "github.com/odyssey-erp/catalog-admin/internal/jobs"
	"github.com/odyssey-erp/catalog-admin/internal/observability"
	"github.com/odyssey-erp/catalog-admin/internal/platform/cache"
	"github.com/odyssey-erp/catalog-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "worker")

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	api := catalogapi.NewClient(catalogapi.Config{
		BaseURL:  cfg.CatalogAPIURL,
		Timeout:  cfg.CatalogAPITimeout,
		Observer: metrics,
	})
	creds := jobs.Credentials{Username: cfg.CatalogAPIUsername, Password: cfg.CatalogAPIPassword}

	scanJob := &jobs.LowStockScanJob{
		Auth:        api,
		Credentials: creds,
		Reporter:    dashboard.NewService(api, logger),
		Snapshots:   dashboard.NewSnapshotStore(redisClient, cfg.SnapshotTTL),
		Observer:    metrics,
		Logger:      logger,
		Metrics:     jobMetrics,
	}
	exportJob := &jobs.CatalogExportJob{
		Auth:        api,
		Credentials: creds,
		Exporter:    catalog.NewService(api, nil, logger),
		Dir:         cfg.ExportDir,
		Observer:    metrics,
		Logger:      logger,
		Metrics:     jobMetrics,
	}

	var cron []jobs.CronRegistration
	if cfg.HasServiceAccount() {
		scanTask, err := jobs.NewLowStockScanTask("scheduler")
		if err != nil {
			logger.Error("build lowstock task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.LowStockScanCron, Task: scanTask})
		if cfg.ExportCron != "" {
			if err := os.MkdirAll(cfg.ExportDir, 0o750); err != nil {
				logger.Error("create export dir", slog.String("dir", cfg.ExportDir), slog.Any("error", err))
				os.Exit(1)
			}
			exportTask, err := jobs.NewCatalogExportTask(cfg.ExportFormat)
			if err != nil {
				logger.Error("build export task", slog.Any("error", err))
				os.Exit(1)
			}
			cron = append(cron, jobs.CronRegistration{Spec: cfg.ExportCron, Task: exportTask})
		}
	} else {
		logger.Warn("CATALOG_API_USERNAME/CATALOG_API_PASSWORD not set, scheduled jobs disabled")
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: scanJob.Handle},
			{Type: jobs.TaskCatalogExport, Handler: exportJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	if cfg.WorkerMetricsAddr != "" {
		server := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		group.Go(func() error {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
