// Package router scores the local router from a short sequential ping burst.
package router

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/queue"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const (
	DefaultSamples  = 5
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = time.Second

	latencyAllowanceMs = 5.0
	lossWeight         = 50.0
	jitterWeight       = 2.0
)

// Scorer issues the burst. Pings are sequential so jitter reflects the gap
// between consecutive replies, not scheduling noise.
type Scorer struct {
	prober   probe.Prober
	samples  int
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

type Option func(*Scorer)

func WithSamples(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.samples = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Scorer) {
		if d >= 0 {
			s.interval = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Scorer) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewScorer(prober probe.Prober, opts ...Option) *Scorer {
	s := &Scorer{
		prober:   prober,
		samples:  DefaultSamples,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		clock:    clock.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score pings addr samples times and derives its health. Consecutive pings
// are separated by the interval, measured from the end of the previous reply.
func (s *Scorer) Score(ctx context.Context, addr string) types.RouterHealth {
	results := make([]types.ProbeResult, 0, s.samples)
	for i := 0; i < s.samples; i++ {
		cancelled := ctx.Err() != nil
		if !cancelled && i > 0 {
			cancelled = !s.pause(ctx)
		}
		if cancelled {
			// Cancelled mid-burst: the missing samples count as lost.
			for len(results) < s.samples {
				results = append(results, types.Failed())
			}
			break
		}
		results = append(results, s.prober.Ping(ctx, addr, s.timeout))
	}

	health := Compute(results)
	s.logger.Debug("router burst",
		zap.String("router", addr),
		zap.Float64("packet_loss", health.PacketLossRate),
		zap.Float64p("avg_latency_ms", health.AvgLatencyMs),
		zap.Float64p("jitter_ms", health.JitterMs),
		zap.Int("score", health.HealthScore),
	)
	return health
}

// pause waits one interval. It reports false when ctx ends first.
func (s *Scorer) pause(ctx context.Context) bool {
	if s.interval <= 0 {
		return true
	}
	timer := s.clock.Timer(s.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Compute derives RouterHealth from a burst. An empty or fully failed burst
// scores 0.
func Compute(results []types.ProbeResult) types.RouterHealth {
	if len(results) == 0 {
		return types.RouterHealth{PacketLossRate: 100}
	}

	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Success && r.LatencyMs != nil {
			latencies = append(latencies, *r.LatencyMs)
		}
	}
	failures := len(results) - len(latencies)
	loss := float64(failures) / float64(len(results))

	health := types.RouterHealth{PacketLossRate: types.Round(loss*100, 1)}
	if len(latencies) == 0 {
		return health
	}

	avg, _ := queue.Mean(latencies)
	health.AvgLatencyMs = types.Float(types.Round(avg, 2))

	score := 100 - loss*lossWeight
	if avg > latencyAllowanceMs {
		score -= avg - latencyAllowanceMs
	}
	if jitter, ok := queue.StdDev(latencies); ok {
		health.JitterMs = types.Float(types.Round(jitter, 2))
		score -= jitter * jitterWeight
	}
	health.HealthScore = int(math.Round(math.Max(0, math.Min(100, score))))
	return health
}
