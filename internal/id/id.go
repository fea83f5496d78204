package id

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	deviceBits       = 8
	seqBits          = 14
	deviceMax        = -1 ^ (-1 << deviceBits)
	seqMax           = -1 ^ (-1 << seqBits)
	timeShift        = deviceBits + seqBits
	deviceShift      = seqBits
	epoch      int64 = 1735689600000 // 2025-01-01 00:00:00 UTC
)

// Generator produces unique scan record IDs. IDs embed the creation
// millisecond so they sort by creation time across restarts.
type Generator struct {
	mu        sync.Mutex
	timestamp int64
	deviceID  int64
	seq       int64
}

// NewGenerator creates a generator for the given device slot.
func NewGenerator(deviceID int64) (*Generator, error) {
	if deviceID < 0 || deviceID > deviceMax {
		return nil, errors.New("device ID too large")
	}
	return &Generator{
		timestamp: 0,
		deviceID:  deviceID,
		seq:       0,
	}, nil
}

// Next creates a unique ID.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()

	if now < g.timestamp {
		// Clock regressed, reuse the last timestamp to prevent duplicates
		now = g.timestamp
	}

	if now == g.timestamp {
		g.seq = (g.seq + 1) & seqMax
		if g.seq == 0 {
			// Sequence exhausted for this millisecond, wait for next
			for now <= g.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}

	g.timestamp = now

	return ((now - epoch) << timeShift) | (g.deviceID << deviceShift) | g.seq
}

// NextString returns Next formatted as the decimal string persisted in
// queue records.
func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}
