package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netsentinelhq/sentinel/internal/config"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

type stubProber struct {
	mu      sync.Mutex
	dnsOK   bool
	httpOK  bool
	traced  []string
	pings   int
	pingsOK bool
}

func (s *stubProber) Ping(ctx context.Context, host string, timeout time.Duration) types.ProbeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	if !s.pingsOK {
		return types.Failed()
	}
	return types.Succeeded(2)
}

func (s *stubProber) Resolve(ctx context.Context, hostname, server string, timeout time.Duration) types.ProbeResult {
	if s.dnsOK {
		return types.Succeeded(10)
	}
	return types.Failed()
}

func (s *stubProber) HTTPGet(ctx context.Context, url string, timeout time.Duration) types.ProbeResult {
	if s.httpOK {
		return types.Succeeded(40)
	}
	return types.Failed()
}

func (s *stubProber) Traceroute(ctx context.Context, target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traced = append(s.traced, target)
	return "1  192.168.1.1  1.0 ms"
}

func writeConfig(t *testing.T, dir, router string) string {
	t.Helper()
	cfg := map[string]any{
		"monitoring": map[string]any{
			"targets": map[string]any{"router": router},
		},
		"router_health": map[string]any{"interval": "1ms"},
		"data_dir":      filepath.Join(dir, "data"),
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func routeRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	if name == "ip" && len(args) == 1 && args[0] == "route" {
		return []byte("default via 192.168.1.1 dev eth0\n"), nil
	}
	return nil, errors.New("unexpected command " + name)
}

func TestRunReportsRoutingOutage(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	configPath := writeConfig(t, tmp, "192.168.1.1")

	state := config.State{InstanceID: "3f2a9c1e-0000-4000-8000-000000000000", CreatedAt: fixedNow()}
	if err := config.SaveState(ctx, filepath.Join(tmp, "data"), state); err != nil {
		t.Fatalf("save state: %v", err)
	}

	prober := &stubProber{pingsOK: true}
	var out bytes.Buffer
	err := Run(ctx, []string{"-config", configPath}, Dependencies{
		Now:        fixedNow,
		RunCommand: routeRunner,
		Prober:     prober,
		Stdout:     &out,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var report Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if report.Healthy {
		t.Fatalf("expected unhealthy report")
	}
	if report.Blame != types.BlameISPRouting {
		t.Fatalf("expected ISP_ROUTING, got %s", report.Blame)
	}
	if report.Rule != "dns_and_http_down" {
		t.Fatalf("unexpected rule %q", report.Rule)
	}
	if report.Event == nil {
		t.Fatalf("expected event in report")
	}
	if !strings.HasPrefix(report.Event.Details, "Internet completely unreachable. Trace: ") {
		t.Fatalf("unexpected event details %q", report.Event.Details)
	}
	if report.Event.IncidentID == "" {
		t.Fatalf("expected incident id")
	}
	if len(prober.traced) != 1 || prober.traced[0] != "8.8.8.8" {
		t.Fatalf("unexpected traceroute targets %v", prober.traced)
	}
	if report.InstanceID != state.InstanceID {
		t.Fatalf("unexpected instance id %q", report.InstanceID)
	}
	if report.Router != "192.168.1.1" || report.RouterDiscovered {
		t.Fatalf("unexpected router %q discovered=%v", report.Router, report.RouterDiscovered)
	}
	if report.ConfigPath != configPath {
		t.Fatalf("unexpected config path %q", report.ConfigPath)
	}
	if report.Routes != "default via 192.168.1.1 dev eth0" {
		t.Fatalf("unexpected routes %q", report.Routes)
	}
	if !report.GeneratedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected generated_at %v", report.GeneratedAt)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", report.Warnings)
	}
}

func TestRunHealthyIsTransient(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	configPath := writeConfig(t, tmp, "192.168.1.1")

	prober := &stubProber{pingsOK: true, dnsOK: true, httpOK: true}
	var out bytes.Buffer
	err := Run(ctx, []string{"-config", configPath, "-format", "yaml"}, Dependencies{
		Now:        fixedNow,
		RunCommand: routeRunner,
		Prober:     prober,
		Stdout:     &out,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var report map[string]any
	if err := yaml.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if report["blame"] != "TRANSIENT" {
		t.Fatalf("expected TRANSIENT, got %v", report["blame"])
	}
	if report["healthy"] != true {
		t.Fatalf("expected healthy report, got %v", report["healthy"])
	}
	if _, ok := report["event"]; ok {
		t.Fatalf("transient report must not carry an event")
	}
	if len(prober.traced) != 0 {
		t.Fatalf("unexpected traceroute %v", prober.traced)
	}
	// Missing state file is a warning, not a failure.
	warnings, _ := report["warnings"].([]any)
	if len(warnings) != 1 || !strings.Contains(warnings[0].(string), "state") {
		t.Fatalf("expected one state warning, got %v", report["warnings"])
	}
}

func TestRunDiscoversRouterAndWritesFile(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	configPath := writeConfig(t, tmp, "")
	outPath := filepath.Join(tmp, "reports", "diag.json")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	prober := &stubProber{pingsOK: true, dnsOK: true, httpOK: true}
	err := Run(ctx, []string{"-config", configPath, "-output", outPath, "-data-dir", tmp}, Dependencies{
		Now:        fixedNow,
		RunCommand: routeRunner,
		Prober:     prober,
		Discover:   func() (net.IP, error) { return net.ParseIP("10.0.0.1"), nil },
		Stdout:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Router != "10.0.0.1" || !report.RouterDiscovered {
		t.Fatalf("expected discovered router, got %q discovered=%v", report.Router, report.RouterDiscovered)
	}
}

func TestRunWithoutRouterBlamesRouter(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	prober := &stubProber{pingsOK: true, dnsOK: true, httpOK: true}
	var out bytes.Buffer
	err := Run(ctx, []string{"-config", filepath.Join(tmp, "missing.yaml"), "-data-dir", tmp}, Dependencies{
		Now: fixedNow,
		RunCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("ip: not found")
		},
		Prober:   prober,
		Discover: func() (net.IP, error) { return nil, errors.New("no route") },
		Stdout:   &out,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var report Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.ConfigPath != "" {
		t.Fatalf("config path should be empty when config is missing, got %q", report.ConfigPath)
	}
	if report.Blame != types.BlameRouterCritical {
		t.Fatalf("expected ROUTER_CRITICAL with no router, got %s", report.Blame)
	}
	// config, router discovery, state and ip route.
	if len(report.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %v", report.Warnings)
	}
	if prober.pings != 0 {
		t.Fatalf("no router should mean no pings, got %d", prober.pings)
	}
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	err := Run(context.Background(), []string{"-format", "xml"}, Dependencies{Prober: &stubProber{}})
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("expected format error, got %v", err)
	}
}
