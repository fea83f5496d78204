package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/id"
)

// MemStore is an in-memory Store. It backs tests and lets call sites swap
// persistence without changing the ingestion or sync code.
type MemStore struct {
	gen     *id.Generator
	mu      sync.Mutex
	records []PendingScan
}

func NewMemStore() *MemStore {
	gen, err := id.NewGenerator(0)
	if err != nil {
		panic(err)
	}
	return &MemStore{gen: gen}
}

func (s *MemStore) Append(payload json.RawMessage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, PendingScan{
		ID:        s.gen.NextString(),
		Payload:   append(json.RawMessage(nil), payload...),
		Timestamp: time.Now().UnixMilli(),
	})
	return len(s.records), nil
}

func (s *MemStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemStore) Snapshot() ([]PendingScan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingScan, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemStore) Remove(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.records[:0]
	for _, rec := range s.records {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

func (s *MemStore) ReplaceAll(records []PendingScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append([]PendingScan(nil), records...)
	return nil
}
