// Package health runs one round of layered connectivity checks.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/aggregate"
	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/queue"
	"github.com/netsentinelhq/sentinel/internal/router"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

// WindowSize is the number of recent HTTP averages kept for jitter.
const WindowSize = 10

// DefaultResolver is used when no public resolvers are configured.
const DefaultResolver = "8.8.8.8"

var (
	DefaultDomains = []string{"google.com", "cloudflare.com", "amazon.com", "microsoft.com"}

	DefaultEndpoints = []string{
		"https://www.google.com/generate_204",
		"https://www.cloudflare.com/cdn-cgi/trace",
		"https://www.apple.com/library/test/success.html",
		"https://www.msftconnecttest.com/connecttest.txt",
	}
)

// Targets lists what a round probes. Empty slices fall back to the defaults;
// an empty ISPGateway skips that layer.
type Targets struct {
	Router     string
	ISPGateway string
	Resolvers  []string
	Domains    []string
	Endpoints  []string
}

func (t Targets) withDefaults() Targets {
	if len(t.Resolvers) == 0 {
		t.Resolvers = []string{DefaultResolver}
	}
	if len(t.Domains) == 0 {
		t.Domains = DefaultDomains
	}
	if len(t.Endpoints) == 0 {
		t.Endpoints = DefaultEndpoints
	}
	return t
}

// Timeouts are per-probe bounds for one round.
type Timeouts struct {
	Ping time.Duration
	DNS  time.Duration
	HTTP time.Duration
}

// Checker builds snapshots. The latency window is its only cross-round state
// and is only touched by Check, which the monitor loop calls serially.
type Checker struct {
	prober     probe.Prober
	aggregator *aggregate.Aggregator
	scorer     *router.Scorer
	targets    Targets
	timeouts   Timeouts
	window     *queue.Ring[float64]
	logger     *zap.Logger
}

type Option func(*Checker)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithScorer(s *router.Scorer) Option {
	return func(c *Checker) {
		if s != nil {
			c.scorer = s
		}
	}
}

func WithAggregator(a *aggregate.Aggregator) Option {
	return func(c *Checker) {
		if a != nil {
			c.aggregator = a
		}
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(c *Checker) {
		if t.Ping > 0 {
			c.timeouts.Ping = t.Ping
		}
		if t.DNS > 0 {
			c.timeouts.DNS = t.DNS
		}
		if t.HTTP > 0 {
			c.timeouts.HTTP = t.HTTP
		}
	}
}

// NewChecker constructs a round runner over prober.
func NewChecker(prober probe.Prober, targets Targets, opts ...Option) *Checker {
	c := &Checker{
		prober:   prober,
		targets:  targets.withDefaults(),
		timeouts: Timeouts{Ping: 2 * time.Second, DNS: 3 * time.Second, HTTP: 5 * time.Second},
		window:   queue.NewRing[float64](WindowSize),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.aggregator == nil {
		c.aggregator = aggregate.New(prober, aggregate.WithLogger(c.logger))
	}
	if c.scorer == nil {
		c.scorer = router.NewScorer(prober, router.WithLogger(c.logger))
	}
	return c
}

// Targets returns the effective targets after defaults.
func (c *Checker) Targets() Targets {
	return c.targets
}

// Check runs every layer once and updates the jitter window.
func (c *Checker) Check(ctx context.Context) types.Snapshot {
	var snap types.Snapshot

	// The DNS and HTTP fan-outs run alongside the router layer; each probe
	// still carries its own timeout.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap.DNS = c.aggregator.DNS(ctx, c.targets.Domains, c.targets.Resolvers, c.timeouts.DNS)
	}()
	go func() {
		defer wg.Done()
		snap.HTTP = c.aggregator.HTTP(ctx, c.targets.Endpoints, c.timeouts.HTTP)
	}()

	if c.targets.Router != "" {
		snap.RouterLatencyMs = c.prober.Ping(ctx, c.targets.Router, c.timeouts.Ping).LatencyMs
		snap.RouterHealth = c.scorer.Score(ctx, c.targets.Router)
	} else {
		snap.RouterHealth = router.Compute(nil)
	}
	if c.targets.ISPGateway != "" {
		snap.ISPGateway = &types.GatewayResult{
			Address:   c.targets.ISPGateway,
			LatencyMs: c.prober.Ping(ctx, c.targets.ISPGateway, c.timeouts.Ping).LatencyMs,
		}
	}
	wg.Wait()

	if snap.HTTP.AvgLatencyMs != nil {
		c.window.Push(*snap.HTTP.AvgLatencyMs)
	}
	if jitter, ok := queue.StdDev(c.window.Values()); ok {
		snap.JitterMs = types.Float(types.Round(jitter, 2))
	}

	c.logger.Debug("health round",
		zap.Float64p("router_latency_ms", snap.RouterLatencyMs),
		zap.Int("router_score", snap.RouterHealth.HealthScore),
		zap.Int("dns_ok", snap.DNS.SuccessCount),
		zap.Int("http_ok", snap.HTTP.SuccessCount),
		zap.Float64p("jitter_ms", snap.JitterMs),
	)
	return snap
}

// History returns the latency window, oldest first.
func (c *Checker) History() []float64 {
	return c.window.Values()
}
