package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/catalog-admin/internal/app"
	"github.com/odyssey-erp/catalog-admin/internal/auth"
	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/observability"
	"github.com/odyssey-erp/catalog-admin/internal/panel"
	"github.com/odyssey-erp/catalog-admin/internal/platform/cache"
	"github.com/odyssey-erp/catalog-admin/internal/pricehistory"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
	"github.com/odyssey-erp/catalog-admin/internal/view"
	"github.com/odyssey-erp/catalog-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "panel")

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
	api := catalogapi.NewClient(catalogapi.Config{
		BaseURL:  cfg.CatalogAPIURL,
		Timeout:  cfg.CatalogAPITimeout,
		Observer: metrics,
	})

	sessionManager := shared.NewSessionManager(redisClient, "catalog_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	guard := shared.NewSubmissionGuard(redisClient, cfg.SubmitGuardTTL)

	templates, err := view.NewEngine(view.WithAssetBase(cfg.CatalogAPIURL))
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authService := auth.NewService(api, shared.NewSealer(cfg.SealSecret), logger)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	supplierService := suppliers.NewService(api, suppliers.NewNameCache(redisClient, cfg.SupplierCacheTTL, logger), logger)
	catalogService := catalog.NewService(api, supplierService, logger)
	historyService := pricehistory.NewService(api, supplierService, logger)
	dashboardService := dashboard.NewService(api, logger)
	snapshots := dashboard.NewSnapshotStore(redisClient, cfg.SnapshotTTL)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	deps := panel.Deps{
		Logger:    logger,
		Templates: templates,
		CSRF:      csrfManager,
		Guard:     guard,
		Catalog:   catalogService,
		Suppliers: supplierService,
		History:   historyService,
		Dashboard: dashboardService,
		Snapshots: snapshots,
		Gauge:     metrics,
	}
	if cfg.HasServiceAccount() {
		deps.Queue = jobClient
	} else {
		logger.Warn("CATALOG_API_USERNAME/CATALOG_API_PASSWORD not set, background scans disabled")
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthService:    authService,
		AuthHandler:    authHandler,
		PanelHandler:   panel.NewHandler(deps),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Ready: func(r *http.Request) error {
			return cache.Ping(r.Context(), redisClient)
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("catalog_api", cfg.CatalogAPIURL))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
