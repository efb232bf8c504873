// Package aggregate fans homogeneous probes out concurrently and folds their
// results into a per-layer summary.
package aggregate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/queue"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

// Aggregator runs one layer's batch of probes. It holds no per-round state.
type Aggregator struct {
	prober probe.Prober
	logger *zap.Logger
	limit  int
}

type Option func(*Aggregator)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLimit bounds the number of in-flight probes. Zero means one goroutine
// per probe.
func WithLimit(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.limit = n
		}
	}
}

func New(prober probe.Prober, opts ...Option) *Aggregator {
	a := &Aggregator{prober: prober, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DNS resolves every domain against every server. A domain succeeds if any
// server answers it.
func (a *Aggregator) DNS(ctx context.Context, domains, servers []string, timeout time.Duration) types.LayerSummary {
	domains = dedupe(domains)
	servers = dedupe(servers)
	samples := make([][]types.ProbeResult, len(domains))
	for i := range samples {
		samples[i] = make([]types.ProbeResult, len(servers))
	}

	a.fanOut(len(domains)*len(servers), func(n int) {
		i, j := n/len(servers), n%len(servers)
		samples[i][j] = a.guard("dns", domains[i]+"@"+servers[j], func() types.ProbeResult {
			return a.prober.Resolve(ctx, domains[i], servers[j], timeout)
		})
	})
	return Summarize(domains, samples)
}

// HTTP fetches each endpoint once.
func (a *Aggregator) HTTP(ctx context.Context, urls []string, timeout time.Duration) types.LayerSummary {
	urls = dedupe(urls)
	samples := make([][]types.ProbeResult, len(urls))

	a.fanOut(len(urls), func(i int) {
		samples[i] = []types.ProbeResult{a.guard("http", urls[i], func() types.ProbeResult {
			return a.prober.HTTPGet(ctx, urls[i], timeout)
		})}
	})
	return Summarize(urls, samples)
}

// fanOut runs task for 0..n-1 and waits for all of them. Tasks write to
// distinct slots so no locking is needed.
func (a *Aggregator) fanOut(n int, task func(int)) {
	if n == 0 {
		return
	}
	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			task(i)
			return nil
		})
	}
	_ = g.Wait()
}

// guard turns a panicking probe into a failure for that pair only.
func (a *Aggregator) guard(op, target string, fn func() types.ProbeResult) (res types.ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("probe panicked", zap.String("op", op), zap.String("target", target), zap.Any("panic", r))
			res = types.Failed()
		}
	}()
	return fn()
}

// Summarize folds per-target attempts into a LayerSummary. A target succeeds
// when at least one attempt did. The average covers every successful attempt,
// not one sample per target.
func Summarize(targets []string, samples [][]types.ProbeResult) types.LayerSummary {
	summary := types.LayerSummary{
		Total:         len(targets),
		FailedTargets: []string{},
	}
	var latencies []float64
	for i, target := range targets {
		ok := false
		if i < len(samples) {
			for _, res := range samples[i] {
				if !res.Success {
					continue
				}
				ok = true
				if res.LatencyMs != nil {
					latencies = append(latencies, *res.LatencyMs)
				}
			}
		}
		if ok {
			summary.SuccessCount++
		} else {
			summary.FailedTargets = append(summary.FailedTargets, target)
		}
	}
	if mean, ok := queue.Mean(latencies); ok {
		summary.AvgLatencyMs = types.Float(types.Round(mean, 2))
	}
	summary.AllSucceeded = len(summary.FailedTargets) == 0
	return summary
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
