package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/config"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"
)

func newTestMonitor(apiURL string) *Monitor {
	cfg := &config.Config{
		APIBaseURL:   apiURL,
		ProbeTimeout: 500 * time.Millisecond,
	}
	m := NewMonitor(cfg, log.NewNop())
	// The probe is what these tests exercise; pin the link check so they do
	// not depend on the host's interfaces.
	m.SetLinkCheck(func() bool { return true })
	return m
}

func TestLinkDownIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("probe must not run when the link is down")
	}))
	defer srv.Close()

	m := newTestMonitor(srv.URL)
	m.SetLinkCheck(func() bool { return false })
	if !m.Recheck(context.Background()) {
		t.Fatal("expected offline when no interface is up")
	}
}

func TestOfflineWhenProbeSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			t.Errorf("unexpected probe path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestMonitor(srv.URL)
	if m.Offline(context.Background()) {
		t.Fatal("expected online when probe returns 200")
	}
	if m.Hint() {
		t.Error("hint should be online after successful probe")
	}
}

func TestOfflineWhenProbeFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := newTestMonitor(srv.URL)
	if !m.Offline(context.Background()) {
		t.Fatal("expected offline when probe returns 502")
	}
	if !m.Hint() {
		t.Error("hint should be offline after failed probe")
	}
}

func TestOfflineWhenServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	m := newTestMonitor(srv.URL)
	if !m.Offline(context.Background()) {
		t.Fatal("expected offline when probe cannot connect")
	}
}

func TestCachedHintSkipsProbe(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestMonitor(srv.URL)
	m.MarkOffline()

	if !m.Offline(context.Background()) {
		t.Fatal("expected cached offline hint to win")
	}
	if probes.Load() != 0 {
		t.Fatalf("offline hint must short-circuit the probe, saw %d probes", probes.Load())
	}

	// An explicit recheck overrides the hint.
	if m.Recheck(context.Background()) {
		t.Fatal("expected recheck to go back online")
	}
	if probes.Load() == 0 {
		t.Fatal("recheck must actually probe")
	}
	if m.Hint() {
		t.Error("hint should be online after recheck")
	}
}
