package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/client"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"
	"github.com/marcos1394/agritrust-fieldsync/internal/queue"
	"github.com/marcos1394/agritrust-fieldsync/internal/token"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrNoBatch is returned when a scan arrives without an active harvest
// batch. Nothing is queued or submitted in that case.
var ErrNoBatch = errors.New("no harvest batch selected")

// Outcome is the terminal state of one scan. A scan that enters Ingest ends
// up either accepted by the server or durably queued; there is no dropped
// state. The intermediate direct-submit attempt lives entirely inside the
// call, so these three values are the only states a caller can observe.
type Outcome int

const (
	// OutcomeSubmitted means the server accepted the scan live.
	OutcomeSubmitted Outcome = iota
	// OutcomeQueuedOffline means the device was known offline and the scan
	// was queued without a network attempt.
	OutcomeQueuedOffline
	// OutcomeQueuedRetry means a live attempt failed and the scan was queued
	// as fallback.
	OutcomeQueuedRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeQueuedOffline:
		return "queued_offline"
	case OutcomeQueuedRetry:
		return "queued_retry"
	default:
		return "unknown"
	}
}

// Result reports what happened to a scan plus the pending count for the
// badge display.
type Result struct {
	Outcome Outcome
	Pending int
}

// Scan is one scan event: the bin's QR payload and the batch context it
// belongs to.
type Scan struct {
	QRCode string
	Batch  *client.HarvestBatch
	Weight float64
}

// scanPayload is the exact wire shape of POST /bins/scan. Built once at
// ingestion; the queue and syncer treat it as opaque bytes from then on.
type scanPayload struct {
	QRCode         string  `json:"qr_code"`
	HarvestBatchID string  `json:"harvest_batch_id"`
	Weight         float64 `json:"weight"`
	TenantID       string  `json:"tenant_id"`
}

// Network is the connectivity view Ingestor needs; *netmon.Monitor
// satisfies it.
type Network interface {
	Offline(ctx context.Context) bool
	MarkOffline()
}

// Submitter performs one live submission; *client.Client satisfies it.
type Submitter interface {
	SubmitScan(ctx context.Context, token string, payload json.RawMessage) error
}

// Ingestor decides the fate of exactly one scan: direct submission when the
// network looks up, durable queueing otherwise. A network failure during
// submission must never lose the scan.
type Ingestor struct {
	store     queue.Store
	network   Network
	submitter Submitter
	tokens    token.Source
	cb        *gobreaker.CircuitBreaker
	logger    *log.Logger
}

func NewIngestor(store queue.Store, network Network, submitter Submitter, tokens token.Source, logger *log.Logger) *Ingestor {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "live-submit",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 2
		},
	})
	return &Ingestor{
		store:     store,
		network:   network,
		submitter: submitter,
		tokens:    tokens,
		cb:        cb,
		logger:    logger,
	}
}

// Ingest runs one scan through the ingestion state machine. Connectivity
// failures are absorbed by queueing; only storage errors propagate, so the
// caller can tell the user the scan was not recorded at all.
func (i *Ingestor) Ingest(ctx context.Context, scan Scan) (Result, error) {
	if scan.Batch == nil {
		return Result{}, ErrNoBatch
	}

	payload, err := json.Marshal(scanPayload{
		QRCode:         scan.QRCode,
		HarvestBatchID: scan.Batch.ID.String(),
		Weight:         scan.Weight,
		TenantID:       scan.Batch.TenantID.String(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode scan payload: %w", err)
	}

	// Connectivity is re-evaluated per scan; it changes while walking a field.
	if i.network.Offline(ctx) {
		n, err := i.store.Append(payload)
		if err != nil {
			return Result{}, err
		}
		i.logger.Info("Scan queued offline", zap.String("qr_code", scan.QRCode), zap.Int("pending", n))
		return Result{Outcome: OutcomeQueuedOffline, Pending: n}, nil
	}

	_, submitErr := i.cb.Execute(func() (interface{}, error) {
		tok, err := i.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		return nil, i.submitter.SubmitScan(ctx, tok, payload)
	})
	if submitErr == nil {
		n, err := i.store.Size()
		if err != nil {
			// The scan is safe on the server; only the badge count is stale.
			i.logger.Warn("Failed to read queue size after submit", zap.Error(err))
			n = 0
		}
		i.logger.Info("Scan submitted live", zap.String("qr_code", scan.QRCode))
		return Result{Outcome: OutcomeSubmitted, Pending: n}, nil
	}

	// Fallback path: the failed attempt flips the monitor offline so the
	// next scans skip the network until a sync or recheck succeeds.
	i.network.MarkOffline()
	n, err := i.store.Append(payload)
	if err != nil {
		return Result{}, fmt.Errorf("queue scan after failed submit: %w", err)
	}
	i.logger.Warn("Live submit failed, scan queued", zap.String("qr_code", scan.QRCode), zap.Int("pending", n), zap.Error(submitErr))
	return Result{Outcome: OutcomeQueuedRetry, Pending: n}, nil
}
