package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcos1394/agritrust-fieldsync/internal/batch"
	"github.com/marcos1394/agritrust-fieldsync/internal/client"
	"github.com/marcos1394/agritrust-fieldsync/internal/config"
	"github.com/marcos1394/agritrust-fieldsync/internal/id"
	"github.com/marcos1394/agritrust-fieldsync/internal/ingest"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"
	"github.com/marcos1394/agritrust-fieldsync/internal/metrics"
	"github.com/marcos1394/agritrust-fieldsync/internal/netmon"
	"github.com/marcos1394/agritrust-fieldsync/internal/queue"
	"github.com/marcos1394/agritrust-fieldsync/internal/server"
	"github.com/marcos1394/agritrust-fieldsync/internal/syncer"
	"github.com/marcos1394/agritrust-fieldsync/internal/token"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	logger := log.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	gen, err := id.NewGenerator(cfg.DeviceNodeID)
	if err != nil {
		logger.Fatal("Failed to initialize ID generator", zap.Error(err))
	}

	store, err := queue.NewFileStore(cfg.QueuePath, gen)
	if err != nil {
		logger.Fatal("Failed to open scan queue", zap.Error(err))
	}

	tokens, err := token.FromConfig(cfg)
	if err != nil {
		logger.Fatal("Failed to configure credentials", zap.Error(err))
	}

	apiClient := client.New(cfg, logger)
	monitor := netmon.NewMonitor(cfg, logger)
	ingestor := ingest.NewIngestor(store, monitor, apiClient, tokens, logger)
	scanSyncer := syncer.NewSyncer(store, apiClient, tokens, monitor, cfg.SyncInterval, logger)
	scanMetrics := metrics.NewScanMetrics(store, monitor, logger)

	catalog := batch.NewCatalog(apiClient, tokens, cfg.BatchCachePath, logger)
	if err := catalog.LoadCache(); err != nil {
		logger.Warn("Failed to load batch cache", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Best-effort startup refresh; the field device may well boot offline.
	if !monitor.Recheck(ctx) {
		if err := catalog.Refresh(ctx); err != nil {
			logger.Warn("Failed to refresh batch catalog", zap.Error(err))
		}
	}

	go scanSyncer.Run(ctx)
	go scanMetrics.Run(ctx)

	r := chi.NewRouter()
	server.SetupRouter(r, cfg, store, ingestor, scanSyncer, monitor, catalog, scanMetrics, logger)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		logger.Info("Device API starting", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Device API failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("Device API shutdown failed", zap.Error(err))
	}
}
