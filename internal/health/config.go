package health

import (
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/aggregate"
	"github.com/netsentinelhq/sentinel/internal/config"
	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/router"
)

// FromConfig builds a Checker for cfg. The router must already be resolved.
func FromConfig(prober probe.Prober, cfg config.Config, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := cfg.Monitoring.Targets
	rh := cfg.RouterHealth
	return NewChecker(prober,
		Targets{
			Router:     t.Router,
			ISPGateway: t.ISPGateway,
			Resolvers:  t.Resolvers(),
			Domains:    cfg.Monitoring.DNSDomains,
			Endpoints:  cfg.Monitoring.HTTPEndpoints,
		},
		WithLogger(logger),
		WithTimeouts(Timeouts{
			Ping: cfg.Probes.PingTimeout,
			DNS:  cfg.Probes.DNSTimeout,
			HTTP: cfg.Probes.HTTPTimeout,
		}),
		WithAggregator(aggregate.New(prober, aggregate.WithLogger(logger))),
		WithScorer(router.NewScorer(prober,
			router.WithSamples(rh.Samples),
			router.WithInterval(rh.Interval),
			router.WithTimeout(rh.Timeout),
			router.WithLogger(logger),
		)),
	)
}
