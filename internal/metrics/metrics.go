package metrics

import (
	"context"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/log"
	"github.com/marcos1394/agritrust-fieldsync/internal/netmon"
	"github.com/marcos1394/agritrust-fieldsync/internal/queue"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type ScanMetrics struct {
	SubmittedTotal prometheus.Counter
	QueuedTotal    *prometheus.CounterVec
	UploadedTotal  prometheus.Counter
	SyncErrorTotal prometheus.Counter
	QueueDepth     prometheus.Gauge
	NetworkState   prometheus.Gauge
	store          queue.Store
	monitor        *netmon.Monitor
	logger         *log.Logger
}

func NewScanMetrics(store queue.Store, monitor *netmon.Monitor, logger *log.Logger) *ScanMetrics {
	m := &ScanMetrics{
		SubmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldsync_scans_submitted_total",
				Help: "Total number of scans accepted live by the server",
			},
		),
		QueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_scans_queued_total",
				Help: "Total number of scans appended to the offline queue, by reason",
			},
			[]string{"reason"},
		),
		UploadedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldsync_sync_uploaded_total",
				Help: "Total number of queued scans uploaded by sync passes",
			},
		),
		SyncErrorTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldsync_sync_errors_total",
				Help: "Total number of queued scans that failed during sync passes",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsync_queue_depth",
				Help: "Number of scans currently in the offline queue",
			},
		),
		NetworkState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldsync_network_online",
				Help: "Cached network state (1 = online, 0 = offline)",
			},
		),
		store:   store,
		monitor: monitor,
		logger:  logger,
	}

	prometheus.MustRegister(
		m.SubmittedTotal,
		m.QueuedTotal,
		m.UploadedTotal,
		m.SyncErrorTotal,
		m.QueueDepth,
		m.NetworkState,
	)

	return m
}

// Run polls the queue depth and cached network state until ctx is canceled.
func (m *ScanMetrics) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Metrics collection shutting down")
			return
		case <-ticker.C:
			size, err := m.store.Size()
			if err != nil {
				m.logger.Error("Failed to read queue size for metrics", zap.Error(err))
			} else {
				m.QueueDepth.Set(float64(size))
			}
			if m.monitor.Hint() {
				m.NetworkState.Set(0)
			} else {
				m.NetworkState.Set(1)
			}
		}
	}
}
