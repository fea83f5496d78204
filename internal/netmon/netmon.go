package netmon

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/marcos1394/agritrust-fieldsync/internal/config"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"

	"go.uber.org/zap"
)

// Monitor answers "can we currently reach the backend?". A device can sit on
// a Wi-Fi access point with no uplink, so a link-level check alone is not
// enough: reachability is settled by a bounded probe against the backend ping
// endpoint. After a failed live submission the monitor caches an offline hint
// so subsequent scans skip the network until a recheck succeeds.
type Monitor struct {
	probeURL      string
	client        *http.Client
	logger        *log.Logger
	linkCheck     func() bool
	assumeOffline atomic.Bool
}

func NewMonitor(cfg *config.Config, logger *log.Logger) *Monitor {
	m := &Monitor{
		probeURL: strings.TrimRight(cfg.APIBaseURL, "/") + "/ping",
		client:   &http.Client{Timeout: cfg.ProbeTimeout},
		logger:   logger,
	}
	m.linkCheck = m.linkUp
	return m
}

// Offline reports whether the backend should be considered unreachable for
// the next scan. The cached offline hint short-circuits so a dead network is
// not hammered once per scan; while the hint says online, the state is
// re-evaluated on every call.
func (m *Monitor) Offline(ctx context.Context) bool {
	if m.assumeOffline.Load() {
		return true
	}
	return m.Recheck(ctx)
}

// Recheck performs the full link and reachability check, overriding the
// cached hint either way. Used by user-initiated sync.
func (m *Monitor) Recheck(ctx context.Context) bool {
	offline := !m.linkCheck() || !m.reachable(ctx)
	m.assumeOffline.Store(offline)
	return offline
}

// SetLinkCheck overrides the interface check. Tests use it to decouple from
// the host's network configuration.
func (m *Monitor) SetLinkCheck(fn func() bool) {
	m.linkCheck = fn
}

// MarkOffline records a failed live submission so following scans go straight
// to the queue.
func (m *Monitor) MarkOffline() {
	m.assumeOffline.Store(true)
}

// MarkOnline clears the cached hint, typically after a successful sync pass.
func (m *Monitor) MarkOnline() {
	m.assumeOffline.Store(false)
}

// Hint returns the cached state without touching the network.
func (m *Monitor) Hint() bool {
	return m.assumeOffline.Load()
}

// linkUp reports whether any non-loopback interface is up. If the platform
// cannot enumerate interfaces the result is optimistic: the real submission
// outcome is authoritative, not this heuristic.
func (m *Monitor) linkUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		m.logger.Warn("Failed to list network interfaces", zap.Error(err))
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp != 0 {
			return true
		}
	}
	return false
}

func (m *Monitor) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
