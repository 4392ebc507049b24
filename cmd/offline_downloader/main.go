package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mediastash/offline_downloader/internal/cleanup"
	"github.com/mediastash/offline_downloader/internal/config"
	"github.com/mediastash/offline_downloader/internal/coordinator"
	"github.com/mediastash/offline_downloader/internal/http/rest"
	"github.com/mediastash/offline_downloader/internal/logctx"
	"github.com/mediastash/offline_downloader/internal/notifier"
	"github.com/mediastash/offline_downloader/internal/storage"
	"github.com/mediastash/offline_downloader/internal/storage/sqlite"
	"github.com/mediastash/offline_downloader/internal/telemetry"
	"github.com/mediastash/offline_downloader/internal/transfer"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("offline downloader starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	catalog := sqlite.NewInstrumentedCatalogRepository(database, tel)

	// =========================================================================
	// Start Coordinator
	runner := transfer.NewRunner(transfer.NewHTTPTransport(cfg.HTTPConnectTimeout, cfg.HTTPReadTimeout))
	runner.BufferSize = cfg.ReadBufferSize
	runner.ReportReads = cfg.ProgressReportReads

	coord := coordinator.New(ctx, catalog, runner, cfg.MaxParallel, tel, nil)
	defer func() {
		coord.PauseAll()
		coord.Wait()
		coord.Close()
	}()

	setupNotificationForCoordinator(ctx, coord, tel, cfg)

	// Rebuild the pending-work queue from the catalog and pick up where the
	// previous process left off.
	if err := coord.Rehydrate(ctx); err != nil {
		return fmt.Errorf("failed to rehydrate pending downloads: %w", err)
	}

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, coord, tel, cfg)

	go func() {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for downloads...",
		"target_dir", cfg.TargetDir,
		"max_parallel", cfg.MaxParallel,
		"retention", cfg.KeepCompletedFor.String(),
	)

	// =========================================================================
	// Start Cleanup
	if cfg.KeepCompletedFor > 0 {
		setupCleanup(ctx, catalog, cfg)
	}

	// =========================================================================
	// Wait for shutdown
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

func setupNotificationForCoordinator(ctx context.Context, coord *coordinator.Coordinator, tel *telemetry.Telemetry, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.WebhookURL != "" {
		notif = &notifier.WebhookNotifier{WebhookURL: cfg.WebhookURL}
	}

	go func() {
		for unit := range coord.OnUnitError {
			logger.Error("unit download failed", "unit_id", unit.ID, "item_id", unit.ItemID, "url", unit.SourceURL)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(
				"❌ Download failed for item: " + unit.ItemID,
			); notifyErr != nil {
				logger.Error("failed to send notification", "err", notifyErr)
			}
		}
	}()

	go func() {
		for itemID := range coord.OnItemCompleted {
			logger.Info("item download completed", "item_id", itemID)

			tel.RecordItemCompleted()

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(
				"✅ Download finished for item: " + itemID,
			); notifyErr != nil {
				logger.Error("failed to send notification", "item_id", itemID, "err", notifyErr)
			}
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, coord *coordinator.Coordinator, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	itemsHandler := rest.NewItemsHandler(cfg.API.Username, cfg.API.Password, coord)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", itemsHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, catalog storage.CatalogRepository, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				records, err := catalog.LoadCompletedUnits()
				if err != nil {
					logger.Error("failed to load completed units for cleanup", "err", err)

					continue
				}

				if err := cleanup.DeleteExpiredUnits(ctx, catalog, records, cfg.KeepCompletedFor); err != nil {
					logger.Error("failed to delete expired downloads", "err", err)
				}
			}
		}
	}()
}
