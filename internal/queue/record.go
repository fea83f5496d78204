package queue

import (
	"encoding/json"
)

// PendingScan is one harvest-bin scan waiting for server acknowledgement.
// Payload is opaque to the queue: it is persisted and later submitted
// byte-for-byte as it was handed in.
type PendingScan struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// Store is the durable, ordered sequence of pending scans. Records enter via
// Append and leave only via Remove after the server has accepted them.
type Store interface {
	// Append persists a new record and returns the resulting queue length.
	Append(payload json.RawMessage) (int, error)
	// Size returns the number of queued records. Cheap enough to poll.
	Size() (int, error)
	// Snapshot returns the queued records in insertion order.
	Snapshot() ([]PendingScan, error)
	// Remove atomically rewrites the queue without the given record IDs.
	// Used after a sync pass to drop exactly the records the server
	// accepted; records appended mid-pass survive.
	Remove(ids []string) error
	// ReplaceAll atomically overwrites the queue with the given records.
	// A concurrent reader sees either the old contents or the new, never a
	// partial write. Backs explicit purge flows; routine sync bookkeeping
	// goes through Remove.
	ReplaceAll(records []PendingScan) error
}
