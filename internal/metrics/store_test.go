package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

func TestStoreWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "netsentinel.prom")
	store := NewStore(path)

	_ = store.UpdateState("status", "HEALTHY")
	_ = store.UpdateState("router_latency", types.Float(1.25))
	_ = store.UpdateState("dns_success_rate", "4/4")
	_ = store.UpdateState("blame", types.BlameNone)
	_ = store.LogEvent(types.Event{Type: types.EventOutage, Severity: types.SeverityCritical})
	store.ObserveRound(true, 0, 1500*time.Millisecond)

	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`netsentinel_state_value{key="router_latency"} 1.25`,
		`netsentinel_status{status="HEALTHY"} 1`,
		`netsentinel_blame{blame="NONE"} 1`,
		`netsentinel_events_total{event_type="OUTAGE",severity="CRITICAL"} 1`,
		`netsentinel_rounds_total{result="healthy"} 1`,
		`netsentinel_consecutive_failures 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in textfile:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dns_success_rate") {
		t.Fatalf("non-numeric state leaked into gauges:\n%s", out)
	}
}

func TestStatusIsOneHot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.prom")
	store := NewStore(path)
	_ = store.UpdateState("status", "HEALTHY")
	_ = store.UpdateState("status", "DIAGNOSING")
	_ = store.UpdateState("status", "OUTAGE_ISP_DNS")
	store.ObserveRound(false, 3, time.Second)
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, _ := os.ReadFile(path)
	out := string(data)
	if strings.Contains(out, `status="HEALTHY"`) || strings.Contains(out, `status="DIAGNOSING"`) {
		t.Fatalf("stale status series kept:\n%s", out)
	}
	if !strings.Contains(out, `netsentinel_status{status="OUTAGE_ISP_DNS"} 1`) {
		t.Fatalf("missing current status:\n%s", out)
	}
	if !strings.Contains(out, "netsentinel_consecutive_failures 3") {
		t.Fatalf("missing consecutive failures:\n%s", out)
	}
}

func TestAbsentValueDropsSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.prom")
	store := NewStore(path)
	_ = store.UpdateState("jitter", types.Float(3))
	_ = store.UpdateState("jitter", (*float64)(nil))
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), `key="jitter"`) {
		t.Fatalf("expected jitter series to be removed:\n%s", data)
	}
}

func TestFlushWithoutPath(t *testing.T) {
	store := NewStore("")
	if err := store.Flush(); err != nil {
		t.Fatalf("expected no-op flush, got %v", err)
	}
	if store.Connected() {
		t.Fatalf("metrics store must not report connected")
	}
}
