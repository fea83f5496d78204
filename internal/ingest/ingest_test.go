package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/marcos1394/agritrust-fieldsync/internal/client"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"
	"github.com/marcos1394/agritrust-fieldsync/internal/queue"
	"github.com/marcos1394/agritrust-fieldsync/internal/token"

	"github.com/google/uuid"
)

type fakeNetwork struct {
	offline bool
	marked  int
}

func (f *fakeNetwork) Offline(ctx context.Context) bool { return f.offline }
func (f *fakeNetwork) MarkOffline()                     { f.offline = true; f.marked++ }

type fakeSubmitter struct {
	err      error
	calls    int
	payloads []string
}

func (f *fakeSubmitter) SubmitScan(ctx context.Context, tok string, payload json.RawMessage) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, string(payload))
	return nil
}

// failStore rejects every write, simulating broken local storage.
type failStore struct {
	queue.Store
}

func (f *failStore) Append(payload json.RawMessage) (int, error) {
	return 0, errors.New("disk full")
}

func testBatch() *client.HarvestBatch {
	return &client.HarvestBatch{
		ID:        uuid.MustParse("3f6f1fd4-9b1a-4a3c-8a44-111111111111"),
		TenantID:  uuid.MustParse("3f6f1fd4-9b1a-4a3c-8a44-222222222222"),
		BatchCode: "LOT-20260830-A",
	}
}

func newTestIngestor(store queue.Store, network *fakeNetwork, submitter *fakeSubmitter) *Ingestor {
	return NewIngestor(store, network, submitter, token.NewStatic("test-token"), log.NewNop())
}

func TestIngestRejectsWithoutBatch(t *testing.T) {
	store := queue.NewMemStore()
	network := &fakeNetwork{}
	submitter := &fakeSubmitter{}
	ing := newTestIngestor(store, network, submitter)

	_, err := ing.Ingest(context.Background(), Scan{QRCode: "BIN-001"})
	if !errors.Is(err, ErrNoBatch) {
		t.Fatalf("expected ErrNoBatch, got %v", err)
	}
	if submitter.calls != 0 {
		t.Errorf("no network call expected, saw %d", submitter.calls)
	}
	if size, _ := store.Size(); size != 0 {
		t.Errorf("no queue mutation expected, size %d", size)
	}
}

func TestIngestOfflineShortCircuit(t *testing.T) {
	store := queue.NewMemStore()
	network := &fakeNetwork{offline: true}
	submitter := &fakeSubmitter{}
	ing := newTestIngestor(store, network, submitter)

	result, err := ing.Ingest(context.Background(), Scan{QRCode: "BIN-001", Batch: testBatch(), Weight: 20})
	if err != nil {
		t.Fatalf("ingest: %s", err)
	}
	if result.Outcome != OutcomeQueuedOffline {
		t.Fatalf("expected queued_offline, got %s", result.Outcome)
	}
	if result.Pending != 1 {
		t.Errorf("expected pending 1, got %d", result.Pending)
	}
	if submitter.calls != 0 {
		t.Fatalf("offline scan must never call the server, saw %d calls", submitter.calls)
	}
}

func TestIngestOnlineSuccess(t *testing.T) {
	store := queue.NewMemStore()
	network := &fakeNetwork{}
	submitter := &fakeSubmitter{}
	ing := newTestIngestor(store, network, submitter)

	result, err := ing.Ingest(context.Background(), Scan{QRCode: "BIN-001", Batch: testBatch(), Weight: 18.5})
	if err != nil {
		t.Fatalf("ingest: %s", err)
	}
	if result.Outcome != OutcomeSubmitted {
		t.Fatalf("expected submitted, got %s", result.Outcome)
	}
	if submitter.calls != 1 {
		t.Fatalf("expected 1 submission, got %d", submitter.calls)
	}
	if size, _ := store.Size(); size != 0 {
		t.Errorf("successful submit must not touch the queue, size %d", size)
	}

	var payload struct {
		QRCode         string  `json:"qr_code"`
		HarvestBatchID string  `json:"harvest_batch_id"`
		Weight         float64 `json:"weight"`
		TenantID       string  `json:"tenant_id"`
	}
	if err := json.Unmarshal([]byte(submitter.payloads[0]), &payload); err != nil {
		t.Fatalf("decode submitted payload: %s", err)
	}
	if payload.QRCode != "BIN-001" || payload.Weight != 18.5 {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.HarvestBatchID != testBatch().ID.String() {
		t.Errorf("unexpected batch id %s", payload.HarvestBatchID)
	}
	if payload.TenantID != testBatch().TenantID.String() {
		t.Errorf("unexpected tenant id %s", payload.TenantID)
	}
}

func TestIngestFallbackOnFailure(t *testing.T) {
	store := queue.NewMemStore()
	network := &fakeNetwork{}
	submitter := &fakeSubmitter{err: errors.New("connection reset")}
	ing := newTestIngestor(store, network, submitter)

	result, err := ing.Ingest(context.Background(), Scan{QRCode: "BIN-001", Batch: testBatch(), Weight: 20})
	if err != nil {
		t.Fatalf("ingest: %s", err)
	}
	if result.Outcome != OutcomeQueuedRetry {
		t.Fatalf("expected queued_retry, got %s", result.Outcome)
	}
	if size, _ := store.Size(); size != 1 {
		t.Fatalf("record must appear in the queue exactly once, size %d", size)
	}
	if network.marked == 0 {
		t.Fatal("failed submit must flip the monitor offline")
	}

	// The flipped hint makes the next scan skip the network entirely.
	calls := submitter.calls
	result, err = ing.Ingest(context.Background(), Scan{QRCode: "BIN-002", Batch: testBatch(), Weight: 20})
	if err != nil {
		t.Fatalf("ingest: %s", err)
	}
	if result.Outcome != OutcomeQueuedOffline {
		t.Fatalf("expected queued_offline after hint flipped, got %s", result.Outcome)
	}
	if submitter.calls != calls {
		t.Fatalf("expected no further network calls, saw %d", submitter.calls-calls)
	}
}

func TestIngestStorageErrorPropagates(t *testing.T) {
	network := &fakeNetwork{offline: true}
	submitter := &fakeSubmitter{}
	ing := newTestIngestor(&failStore{queue.NewMemStore()}, network, submitter)

	_, err := ing.Ingest(context.Background(), Scan{QRCode: "BIN-001", Batch: testBatch(), Weight: 20})
	if err == nil {
		t.Fatal("expected storage error to propagate")
	}
	if submitter.calls != 0 {
		t.Errorf("no network call expected, saw %d", submitter.calls)
	}
}

// Every payload that enters the ingestion path ends up accepted by the
// server or present in the queue, across connectivity flapping.
func TestIngestNoLoss(t *testing.T) {
	store := queue.NewMemStore()
	network := &fakeNetwork{}
	submitter := &fakeSubmitter{}
	ing := newTestIngestor(store, network, submitter)

	steps := []struct {
		offline   bool
		submitErr error
	}{
		{offline: false},
		{offline: true},
		{offline: true},
		{offline: false, submitErr: errors.New("timeout")},
		{offline: true}, // hint from failed submit keeps this offline anyway
		{offline: false},
		{offline: false},
	}

	for n, step := range steps {
		network.offline = step.offline
		submitter.err = step.submitErr
		qr := fmt.Sprintf("BIN-%03d", n)
		if _, err := ing.Ingest(context.Background(), Scan{QRCode: qr, Batch: testBatch(), Weight: 20}); err != nil {
			t.Fatalf("step %d: %s", n, err)
		}
	}

	records, err := store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %s", err)
	}
	seen := make(map[string]int)
	for _, p := range submitter.payloads {
		seen[qrOf(t, []byte(p))]++
	}
	for _, rec := range records {
		seen[qrOf(t, rec.Payload)]++
	}
	for n := range steps {
		qr := fmt.Sprintf("BIN-%03d", n)
		if seen[qr] != 1 {
			t.Errorf("scan %s appears %d times across server and queue, want exactly 1", qr, seen[qr])
		}
	}
}

func qrOf(t *testing.T, payload []byte) string {
	t.Helper()
	var p struct {
		QRCode string `json:"qr_code"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("decode payload: %s", err)
	}
	return p.QRCode
}
