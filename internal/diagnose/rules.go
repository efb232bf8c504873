// Package diagnose attributes an unhealthy round to a single layer.
package diagnose

import (
	"fmt"
	"strings"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

const (
	CriticalScore      = 30
	DegradedScore      = 60
	JitterLimitMs      = 50.0
	RoutingTraceTarget = "8.8.8.8"
)

// Verdict is the outcome of evaluating a snapshot. Event is nil when the
// round needs no event (TRANSIENT).
type Verdict struct {
	Rule   string
	Blame  types.BlameCode
	Detail string
	Event  *types.Event
	// TraceTarget, when set, is traced and the tail of the output appended to
	// the event details.
	TraceTarget string
}

// Rule is one predicate/outcome pair. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Name    string
	Match   func(types.Snapshot) bool
	Verdict func(types.Snapshot) Verdict
}

// Rules is the fault hierarchy, local equipment first.
var Rules = []Rule{
	{
		Name:  "router_critical",
		Match: func(s types.Snapshot) bool { return s.RouterHealth.HealthScore < CriticalScore },
		Verdict: func(s types.Snapshot) Verdict {
			h := s.RouterHealth
			return Verdict{
				Blame:  types.BlameRouterCritical,
				Detail: fmt.Sprintf("Router health critical (score %d) - restart your router", h.HealthScore),
				Event: outage("YourRouter", types.SeverityCritical,
					fmt.Sprintf("Router health critical: score %d, %g%% packet loss", h.HealthScore, h.PacketLossRate)),
			}
		},
	},
	{
		// A degraded router with failing upstream layers falls through so
		// the ISP can still be blamed.
		Name: "router_degraded",
		Match: func(s types.Snapshot) bool {
			score := s.RouterHealth.HealthScore
			return score >= CriticalScore && score < DegradedScore && s.DNS.AllSucceeded && s.HTTP.AllSucceeded
		},
		Verdict: func(s types.Snapshot) Verdict {
			h := s.RouterHealth
			return Verdict{
				Blame:  types.BlameRouterDegraded,
				Detail: fmt.Sprintf("Router degraded (score %d) - local network unstable", h.HealthScore),
				Event: degraded("YourRouter",
					fmt.Sprintf("Router health degraded: score %d, %g%% packet loss, jitter %s", h.HealthScore, h.PacketLossRate, ms(h.JitterMs))),
			}
		},
	},
	{
		Name:  "router_down",
		Match: func(s types.Snapshot) bool { return !s.RouterReachable() },
		Verdict: func(types.Snapshot) Verdict {
			return Verdict{
				Blame:  types.BlameRouterDown,
				Detail: "Router unreachable - check if router is powered on",
				Event:  outage("YourRouter", types.SeverityCritical, "Your router/modem is down or unreachable"),
			}
		},
	},
	{
		Name:  "isp_equipment",
		Match: func(s types.Snapshot) bool { return s.ISPGateway != nil && !s.ISPGateway.Reachable() },
		Verdict: func(s types.Snapshot) Verdict {
			return Verdict{
				Blame:       types.BlameISPEquipment,
				Detail:      "ISP gateway down - contact your ISP",
				Event:       outage("ISP", types.SeverityCritical, "ISP gateway unreachable."),
				TraceTarget: s.ISPGateway.Address,
			}
		},
	},
	{
		// Every resolver and every endpoint failing is a routing outage,
		// not a DNS problem.
		Name:  "dns_and_http_down",
		Match: func(s types.Snapshot) bool { return s.DNS.AllFailed() && s.HTTP.AllFailed() },
		Verdict: func(types.Snapshot) Verdict {
			return routingOutage()
		},
	},
	{
		Name:  "dns_down",
		Match: func(s types.Snapshot) bool { return s.DNS.AllFailed() },
		Verdict: func(types.Snapshot) Verdict {
			return Verdict{
				Blame:  types.BlameISPDNS,
				Detail: "DNS completely failed - ISP DNS issue",
				Event:  outage("ISP_DNS", types.SeverityCritical, "All DNS resolution failed - ISP DNS servers down"),
			}
		},
	},
	{
		Name:  "dns_partial",
		Match: func(s types.Snapshot) bool { return !s.DNS.AllSucceeded },
		Verdict: func(s types.Snapshot) Verdict {
			return Verdict{
				Blame:  types.BlameDegradedDNS,
				Detail: "Partial DNS failure - some domains unreachable",
				Event: degraded("DNS", fmt.Sprintf("%d/%d DNS failed: %s",
					len(s.DNS.FailedTargets), s.DNS.Total, strings.Join(s.DNS.FailedTargets, ", "))),
			}
		},
	},
	{
		Name:  "http_down",
		Match: func(s types.Snapshot) bool { return s.HTTP.AllFailed() },
		Verdict: func(types.Snapshot) Verdict {
			return routingOutage()
		},
	},
	{
		Name:  "http_partial",
		Match: func(s types.Snapshot) bool { return !s.HTTP.AllSucceeded },
		Verdict: func(s types.Snapshot) Verdict {
			return Verdict{
				Blame:  types.BlameDegradedInternet,
				Detail: "Partial internet failure - some services unreachable",
				Event: degraded("Internet", fmt.Sprintf("%d/%d endpoints failed: %s",
					len(s.HTTP.FailedTargets), s.HTTP.Total, strings.Join(s.HTTP.FailedTargets, ", "))),
			}
		},
	},
	{
		Name:  "quality",
		Match: func(s types.Snapshot) bool { return s.JitterMs != nil && *s.JitterMs > JitterLimitMs },
		Verdict: func(s types.Snapshot) Verdict {
			return Verdict{
				Blame:  types.BlameDegradedQuality,
				Detail: fmt.Sprintf("High jitter (%s) - unstable connection", ms(s.JitterMs)),
				Event:  degraded("Quality", fmt.Sprintf("High jitter: %s - connection unstable", ms(s.JitterMs))),
			}
		},
	},
}

var transient = Verdict{
	Rule:   "transient",
	Blame:  types.BlameTransient,
	Detail: "Issue resolved - was temporary",
}

// Evaluate walks Rules against snap. It is pure: the same snapshot always
// yields the same verdict.
func Evaluate(snap types.Snapshot) Verdict {
	return EvaluateRules(Rules, snap)
}

// EvaluateRules returns the verdict of the first matching rule, or TRANSIENT.
func EvaluateRules(rules []Rule, snap types.Snapshot) Verdict {
	for _, rule := range rules {
		if !rule.Match(snap) {
			continue
		}
		v := rule.Verdict(snap)
		v.Rule = rule.Name
		return v
	}
	return transient
}

func routingOutage() Verdict {
	return Verdict{
		Blame:       types.BlameISPRouting,
		Detail:      "Internet unreachable - ISP routing/connection issue",
		Event:       outage("ISP", types.SeverityCritical, "Internet completely unreachable."),
		TraceTarget: RoutingTraceTarget,
	}
}

func outage(target string, sev types.Severity, details string) *types.Event {
	return &types.Event{Type: types.EventOutage, Target: target, Details: details, Severity: sev}
}

func degraded(target, details string) *types.Event {
	return &types.Event{Type: types.EventDegraded, Target: target, Details: details, Severity: types.SeverityWarning}
}

func ms(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%gms", *v)
}
