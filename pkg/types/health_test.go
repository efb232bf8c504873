package types

import "testing"

func TestSnapshotHealthyIgnoresDiagnosticSignals(t *testing.T) {
	snap := Snapshot{
		RouterLatencyMs: Float(1.2),
		RouterHealth:    RouterHealth{HealthScore: 10},
		DNS:             LayerSummary{SuccessCount: 4, Total: 4, AllSucceeded: true},
		HTTP:            LayerSummary{SuccessCount: 4, Total: 4, AllSucceeded: true},
		JitterMs:        Float(120),
	}
	if !snap.Healthy() {
		t.Fatalf("low score and high jitter must not make a snapshot unhealthy")
	}

	snap.RouterLatencyMs = nil
	if snap.Healthy() {
		t.Fatalf("unreachable router must be unhealthy")
	}
}

func TestLayerSummaryAllFailed(t *testing.T) {
	if !(LayerSummary{Total: 4, FailedTargets: []string{"a", "b", "c", "d"}}).AllFailed() {
		t.Fatalf("expected all failed")
	}
	if (LayerSummary{Total: 4, SuccessCount: 1}).AllFailed() {
		t.Fatalf("one success is not all failed")
	}
	if (LayerSummary{}).AllFailed() {
		t.Fatalf("an unconfigured layer never counts as failed")
	}
}

func TestGatewayReachable(t *testing.T) {
	var missing *GatewayResult
	if missing.Reachable() {
		t.Fatalf("nil gateway reported reachable")
	}
	if (&GatewayResult{Address: "10.0.0.1"}).Reachable() {
		t.Fatalf("gateway without latency reported reachable")
	}
	if !(&GatewayResult{Address: "10.0.0.1", LatencyMs: Float(3)}).Reachable() {
		t.Fatalf("gateway with latency reported unreachable")
	}
}

func TestRound(t *testing.T) {
	if got := Round(12.346, 2); got != 12.35 {
		t.Fatalf("expected 12.35, got %v", got)
	}
	if got := Round(33.333, 1); got != 33.3 {
		t.Fatalf("expected 33.3, got %v", got)
	}
}
