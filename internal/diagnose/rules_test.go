package diagnose

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

func layer(total, failed int) types.LayerSummary {
	s := types.LayerSummary{Total: total, SuccessCount: total - failed, FailedTargets: []string{}}
	for i := 0; i < failed; i++ {
		s.FailedTargets = append(s.FailedTargets, "target-"+string(rune('a'+i)))
	}
	if s.SuccessCount > 0 {
		s.AvgLatencyMs = types.Float(20)
	}
	s.AllSucceeded = failed == 0
	return s
}

func healthy() types.Snapshot {
	return types.Snapshot{
		RouterLatencyMs: types.Float(1.2),
		RouterHealth:    types.RouterHealth{HealthScore: 95, AvgLatencyMs: types.Float(1.2)},
		DNS:             layer(4, 0),
		HTTP:            layer(4, 0),
	}
}

func TestScenarios(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*types.Snapshot)
		blame types.BlameCode
	}{
		{"router ping fails", func(s *types.Snapshot) { s.RouterLatencyMs = nil; s.RouterHealth.HealthScore = 60 }, types.BlameRouterDown},
		{"router degraded alone", func(s *types.Snapshot) { s.RouterHealth.HealthScore = 45 }, types.BlameRouterDegraded},
		{"dns and http all fail", func(s *types.Snapshot) { s.DNS = layer(4, 4); s.HTTP = layer(4, 4) }, types.BlameISPRouting},
		{"one dns domain fails", func(s *types.Snapshot) { s.DNS = layer(4, 1) }, types.BlameDegradedDNS},
		{"high jitter", func(s *types.Snapshot) { s.JitterMs = types.Float(65) }, types.BlameDegradedQuality},
		{"all passing", func(s *types.Snapshot) {}, types.BlameTransient},
		{"jitter at limit", func(s *types.Snapshot) { s.JitterMs = types.Float(50) }, types.BlameTransient},
		{"router critical", func(s *types.Snapshot) { s.RouterHealth.HealthScore = 29 }, types.BlameRouterCritical},
		{"gateway down", func(s *types.Snapshot) { s.ISPGateway = &types.GatewayResult{Address: "100.64.0.1"} }, types.BlameISPEquipment},
		{"gateway up", func(s *types.Snapshot) {
			s.ISPGateway = &types.GatewayResult{Address: "100.64.0.1", LatencyMs: types.Float(8)}
		}, types.BlameTransient},
		{"dns all fail http ok", func(s *types.Snapshot) { s.DNS = layer(4, 4) }, types.BlameISPDNS},
		{"http all fail", func(s *types.Snapshot) { s.HTTP = layer(4, 4) }, types.BlameISPRouting},
		{"http partial", func(s *types.Snapshot) { s.HTTP = layer(4, 2) }, types.BlameDegradedInternet},
		{"degraded router falls through to isp", func(s *types.Snapshot) {
			s.RouterHealth.HealthScore = 45
			s.DNS = layer(4, 4)
		}, types.BlameISPDNS},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := healthy()
			tc.mut(&snap)
			assert.Equal(t, tc.blame, Evaluate(snap).Blame)
		})
	}
}

func TestCriticalShortCircuits(t *testing.T) {
	variants := []func(*types.Snapshot){
		func(s *types.Snapshot) {},
		func(s *types.Snapshot) { s.RouterLatencyMs = nil },
		func(s *types.Snapshot) { s.DNS = layer(4, 4); s.HTTP = layer(4, 4) },
		func(s *types.Snapshot) { s.HTTP = layer(4, 1); s.JitterMs = types.Float(200) },
		func(s *types.Snapshot) { s.ISPGateway = &types.GatewayResult{Address: "100.64.0.1"} },
	}
	for score := 0; score < CriticalScore; score += 7 {
		for _, mut := range variants {
			snap := healthy()
			snap.RouterHealth.HealthScore = score
			mut(&snap)
			v := Evaluate(snap)
			assert.Equal(t, types.BlameRouterCritical, v.Blame)
			assert.Equal(t, "router_critical", v.Rule)
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	snap := healthy()
	snap.DNS = layer(4, 2)
	snap.JitterMs = types.Float(80)
	first := Evaluate(snap)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Evaluate(snap))
	}
}

func TestVerdictEvents(t *testing.T) {
	snap := healthy()
	snap.DNS = layer(4, 1)
	v := Evaluate(snap)
	if assert.NotNil(t, v.Event) {
		assert.Equal(t, types.EventDegraded, v.Event.Type)
		assert.Equal(t, types.SeverityWarning, v.Event.Severity)
		assert.Equal(t, "DNS", v.Event.Target)
		assert.Equal(t, "1/4 DNS failed: target-a", v.Event.Details)
	}
	assert.Empty(t, v.TraceTarget)

	snap = healthy()
	snap.HTTP = layer(4, 4)
	v = Evaluate(snap)
	assert.Equal(t, RoutingTraceTarget, v.TraceTarget)
	assert.Equal(t, types.SeverityCritical, v.Event.Severity)

	v = Evaluate(healthy())
	assert.Nil(t, v.Event)
	assert.Equal(t, "Issue resolved - was temporary", v.Detail)
}

func TestEmptyLayersDoNotBlame(t *testing.T) {
	snap := healthy()
	snap.DNS = types.LayerSummary{AllSucceeded: true}
	snap.HTTP = types.LayerSummary{AllSucceeded: true}
	assert.Equal(t, types.BlameTransient, Evaluate(snap).Blame)
}

func TestCustomRules(t *testing.T) {
	rules := []Rule{{
		Name:    "always",
		Match:   func(types.Snapshot) bool { return true },
		Verdict: func(types.Snapshot) Verdict { return Verdict{Blame: types.BlameDegradedQuality} },
	}}
	v := EvaluateRules(rules, healthy())
	assert.Equal(t, "always", v.Rule)
	assert.Equal(t, types.BlameTransient, EvaluateRules(nil, healthy()).Blame)
}
