package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/id"
)

// FileStore persists the queue as a JSON array in a single file. Overwrites
// go through a temp file in the same directory followed by a rename, so a
// crash mid-write leaves the previous contents intact.
type FileStore struct {
	path string
	gen  *id.Generator
	mu   sync.Mutex
}

func NewFileStore(path string, gen *id.Generator) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create queue directory %s: %w", dir, err)
	}
	s := &FileStore{path: path, gen: gen}
	// Fail fast on unreadable or corrupt contents instead of at first scan.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Append(payload json.RawMessage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return 0, err
	}
	records = append(records, PendingScan{
		ID:        s.gen.NextString(),
		Payload:   append(json.RawMessage(nil), payload...),
		Timestamp: time.Now().UnixMilli(),
	})
	if err := s.persist(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *FileStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *FileStore) Snapshot() ([]PendingScan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]PendingScan, len(records))
	copy(out, records)
	return out, nil
}

func (s *FileStore) Remove(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := records[:0]
	for _, rec := range records {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	return s.persist(kept)
}

func (s *FileStore) ReplaceAll(records []PendingScan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.persist(records)
}

func (s *FileStore) load() ([]PendingScan, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scan queue %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []PendingScan
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode scan queue %s: %w", s.path, err)
	}
	return records, nil
}

func (s *FileStore) persist(records []PendingScan) error {
	if records == nil {
		records = []PendingScan{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode scan queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create queue temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write queue temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync queue temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close queue temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace scan queue %s: %w", s.path, err)
	}
	return nil
}
