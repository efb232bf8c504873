package types

import "math"

// ProbeResult is the outcome of one probe invocation. LatencyMs is nil when
// the probe failed.
type ProbeResult struct {
	Success   bool     `json:"success" yaml:"success"`
	LatencyMs *float64 `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
}

// Succeeded builds a successful result carrying latency.
func Succeeded(latencyMs float64) ProbeResult {
	return ProbeResult{Success: true, LatencyMs: Float(latencyMs)}
}

// Failed is the zero-latency failure result every probe collapses to.
func Failed() ProbeResult {
	return ProbeResult{}
}

// LayerSummary folds one layer's batch of probe results.
//
// SuccessCount + len(FailedTargets) == Total, AvgLatencyMs is nil iff
// SuccessCount == 0 and AllSucceeded == (len(FailedTargets) == 0).
type LayerSummary struct {
	SuccessCount  int      `json:"success_count" yaml:"success_count"`
	Total         int      `json:"total" yaml:"total"`
	FailedTargets []string `json:"failed_targets" yaml:"failed_targets"`
	AvgLatencyMs  *float64 `json:"avg_latency_ms,omitempty" yaml:"avg_latency_ms,omitempty"`
	AllSucceeded  bool     `json:"all_succeeded" yaml:"all_succeeded"`
}

// AllFailed reports whether a configured layer had no successful target.
func (s LayerSummary) AllFailed() bool {
	return s.Total > 0 && s.SuccessCount == 0
}

// RouterHealth is derived from a burst of router pings in one round.
type RouterHealth struct {
	PacketLossRate float64  `json:"packet_loss_rate" yaml:"packet_loss_rate"`
	AvgLatencyMs   *float64 `json:"avg_latency_ms,omitempty" yaml:"avg_latency_ms,omitempty"`
	JitterMs       *float64 `json:"jitter_ms,omitempty" yaml:"jitter_ms,omitempty"`
	HealthScore    int      `json:"health_score" yaml:"health_score"`
}

// GatewayResult is present on a Snapshot only when an ISP gateway is configured.
type GatewayResult struct {
	Address   string   `json:"address" yaml:"address"`
	LatencyMs *float64 `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
}

// Reachable reports whether the gateway answered its ping.
func (g *GatewayResult) Reachable() bool {
	return g != nil && g.LatencyMs != nil
}

// Snapshot is one round's complete view of every layer.
type Snapshot struct {
	RouterLatencyMs *float64       `json:"router_latency_ms,omitempty" yaml:"router_latency_ms,omitempty"`
	RouterHealth    RouterHealth   `json:"router_health" yaml:"router_health"`
	ISPGateway      *GatewayResult `json:"isp_gateway,omitempty" yaml:"isp_gateway,omitempty"`
	DNS             LayerSummary   `json:"dns" yaml:"dns"`
	HTTP            LayerSummary   `json:"http" yaml:"http"`
	JitterMs        *float64       `json:"jitter_ms,omitempty" yaml:"jitter_ms,omitempty"`
}

// RouterReachable reports whether the quick router ping succeeded.
func (s Snapshot) RouterReachable() bool {
	return s.RouterLatencyMs != nil
}

// Healthy gates debounce. Router score and jitter are diagnostic only.
func (s Snapshot) Healthy() bool {
	return s.RouterReachable() && s.DNS.AllSucceeded && s.HTTP.AllSucceeded
}

// Throughput is the result of a speed test. Upload and latency are optional
// because not every tester measures them.
type Throughput struct {
	DownloadMbps float64  `json:"download_mbps"`
	UploadMbps   *float64 `json:"upload_mbps,omitempty"`
	LatencyMs    *float64 `json:"latency_ms,omitempty"`
	Source       string   `json:"source"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
