package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/batch"
	"github.com/marcos1394/agritrust-fieldsync/internal/config"
	"github.com/marcos1394/agritrust-fieldsync/internal/ingest"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"
	"github.com/marcos1394/agritrust-fieldsync/internal/metrics"
	"github.com/marcos1394/agritrust-fieldsync/internal/netmon"
	"github.com/marcos1394/agritrust-fieldsync/internal/queue"
	"github.com/marcos1394/agritrust-fieldsync/internal/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter mounts the device-local API: scan ingestion, queue status,
// manual sync and the batch catalog. This is the surface the scanning UI
// talks to instead of the backend directly.
func SetupRouter(r *chi.Mux, cfg *config.Config, store queue.Store, ingestor *ingest.Ingestor, sync *syncer.Syncer, monitor *netmon.Monitor, catalog *batch.Catalog, scanMetrics *metrics.ScanMetrics, logger *log.Logger) {
	r.Use(httprate.Limit(300, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := store.Size(); err != nil {
			logger.Error("Queue health check failed", zap.Error(err))
			http.Error(w, "Queue storage unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QRCode string  `json:"qr_code"`
			Weight float64 `json:"weight"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("Failed to decode scan request", zap.Error(err))
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.QRCode == "" {
			http.Error(w, "Missing qr_code", http.StatusBadRequest)
			return
		}
		if req.Weight == 0 {
			req.Weight = cfg.DefaultBinWeight
		}

		scan := ingest.Scan{QRCode: req.QRCode, Weight: req.Weight}
		if selected, ok := catalog.Selected(); ok {
			scan.Batch = &selected
		}

		start := time.Now()
		result, err := ingestor.Ingest(r.Context(), scan)
		if err != nil {
			if errors.Is(err, ingest.ErrNoBatch) {
				http.Error(w, "Select a harvest batch first", http.StatusBadRequest)
				return
			}
			// Storage failure: the scan is NOT recorded anywhere. The UI must
			// say so instead of a false "saved offline".
			logger.Error("Failed to record scan", zap.String("qr_code", req.QRCode), zap.Error(err))
			http.Error(w, "Scan could not be recorded", http.StatusInternalServerError)
			return
		}

		switch result.Outcome {
		case ingest.OutcomeSubmitted:
			scanMetrics.SubmittedTotal.Inc()
		case ingest.OutcomeQueuedOffline:
			scanMetrics.QueuedTotal.WithLabelValues("offline").Inc()
		case ingest.OutcomeQueuedRetry:
			scanMetrics.QueuedTotal.WithLabelValues("retry").Inc()
		}

		resp := map[string]interface{}{
			"outcome": result.Outcome.String(),
			"pending": result.Pending,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("Failed to encode scan response", zap.Error(err))
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
		logger.Info("Handled scan", zap.String("outcome", result.Outcome.String()), zap.Duration("duration", time.Since(start)))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		size, err := store.Size()
		if err != nil {
			logger.Error("Failed to read queue size", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := map[string]interface{}{
			"pending": size,
			"offline": monitor.Hint(),
			"syncing": sync.Running(),
		}
		if selected, ok := catalog.Selected(); ok {
			resp["batch_code"] = selected.BatchCode
			resp["batch_id"] = selected.ID
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("Failed to encode status response", zap.Error(err))
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	})

	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		if sync.Running() {
			http.Error(w, "Sync already in progress", http.StatusConflict)
			return
		}
		// Manual sync is the explicit recheck that overrides the cached
		// offline hint.
		if monitor.Recheck(r.Context()) {
			http.Error(w, "Device is offline", http.StatusServiceUnavailable)
			return
		}

		result, err := sync.SyncNow(r.Context())
		if err != nil {
			if errors.Is(err, syncer.ErrSyncInProgress) {
				http.Error(w, "Sync already in progress", http.StatusConflict)
				return
			}
			logger.Error("Sync failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		scanMetrics.UploadedTotal.Add(float64(result.Uploaded))
		scanMetrics.SyncErrorTotal.Add(float64(result.Errors))
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.Error("Failed to encode sync response", zap.Error(err))
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	})

	r.Get("/batches", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(catalog.List()); err != nil {
			logger.Error("Failed to encode batches response", zap.Error(err))
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	})

	r.Post("/batches/refresh", func(w http.ResponseWriter, r *http.Request) {
		if err := catalog.Refresh(r.Context()); err != nil {
			logger.Error("Failed to refresh batches", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err := json.NewEncoder(w).Encode(catalog.List()); err != nil {
			logger.Error("Failed to encode batches response", zap.Error(err))
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	})

	r.Post("/batches/select", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("Failed to decode batch select request", zap.Error(err))
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		selected, err := catalog.Select(req.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Info("Selected batch", zap.String("batch_code", selected.BatchCode))
		if err := json.NewEncoder(w).Encode(selected); err != nil {
			logger.Error("Failed to encode batch response", zap.Error(err))
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	})
}
