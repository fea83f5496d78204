package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/log"
	"github.com/marcos1394/agritrust-fieldsync/internal/queue"
	"github.com/marcos1394/agritrust-fieldsync/internal/token"

	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when a sync pass is already running. A later
// pass simply covers whatever is still queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// Result summarizes one sync pass over the queue snapshot.
type Result struct {
	Success   bool `json:"success"`
	Uploaded  int  `json:"count"`
	Errors    int  `json:"errors"`
	Remaining int  `json:"remaining"`
}

// Network is the connectivity view the background loop consults;
// *netmon.Monitor satisfies it.
type Network interface {
	Recheck(ctx context.Context) bool
	MarkOnline()
}

// Submitter performs one record submission; *client.Client satisfies it.
type Submitter interface {
	SubmitScan(ctx context.Context, token string, payload json.RawMessage) error
}

// Syncer drains the durable queue against the server, one record at a time,
// in queue order. Sequential submission bounds backend load and keeps
// partial-failure bookkeeping trivial.
type Syncer struct {
	store     queue.Store
	submitter Submitter
	tokens    token.Source
	network   Network
	interval  time.Duration
	logger    *log.Logger
	running   atomic.Bool
}

func NewSyncer(store queue.Store, submitter Submitter, tokens token.Source, network Network, interval time.Duration, logger *log.Logger) *Syncer {
	return &Syncer{
		store:     store,
		submitter: submitter,
		tokens:    tokens,
		network:   network,
		interval:  interval,
		logger:    logger,
	}
}

// Running reports whether a sync pass is in flight. The manual sync surface
// is disabled while this is true.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// SyncNow runs one pass: snapshot the queue, submit every record in order,
// then atomically drop the accepted records so exactly the failures stay
// queued. An individual failure never aborts the pass. The pass is not atomic across records:
// progress beats all-or-nothing, and the server tolerates the rare
// crash-window resubmission.
func (s *Syncer) SyncNow(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	records, err := s.store.Snapshot()
	if err != nil {
		return Result{}, err
	}
	if len(records) == 0 {
		return Result{Success: true}, nil
	}

	start := time.Now()
	accepted := make([]string, 0, len(records))
	errorCount := 0

	for _, rec := range records {
		if err := s.submit(ctx, rec); err != nil {
			s.logger.Warn("Failed to upload queued scan", zap.String("id", rec.ID), zap.Error(err))
			errorCount++
			continue
		}
		accepted = append(accepted, rec.ID)
	}

	// Drop exactly the accepted records. A scan appended while this pass
	// was running stays queued for the next one.
	if err := s.store.Remove(accepted); err != nil {
		// Accepted records may resurface in the queue; the server side
		// tolerates the duplicate rather than this side dropping data.
		return Result{}, err
	}

	result := Result{
		Success:   errorCount == 0,
		Uploaded:  len(accepted),
		Errors:    errorCount,
		Remaining: len(records) - len(accepted),
	}
	if len(accepted) > 0 {
		// At least one record reached the server, so the cached offline
		// hint is stale.
		s.network.MarkOnline()
	}
	s.logger.Info("Sync pass finished",
		zap.Int("uploaded", result.Uploaded),
		zap.Int("errors", result.Errors),
		zap.Int("remaining", result.Remaining),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// submit fetches a fresh token and uploads one record.
func (s *Syncer) submit(ctx context.Context, rec queue.PendingScan) error {
	tok, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}
	return s.submitter.SubmitScan(ctx, tok, rec.Payload)
}

// Run drains the queue opportunistically whenever connectivity is back. This
// is the automatic counterpart of the manual sync action.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down")
			return
		case <-ticker.C:
			size, err := s.store.Size()
			if err != nil {
				s.logger.Error("Failed to read queue size", zap.Error(err))
				continue
			}
			if size == 0 {
				continue
			}
			if s.network.Recheck(ctx) {
				continue
			}
			if _, err := s.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				s.logger.Error("Automatic sync failed", zap.Error(err))
			}
		}
	}
}
