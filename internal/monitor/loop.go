// Package monitor drives the fixed-cadence health loop and its failure
// debounce.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/diagnose"
	"github.com/netsentinelhq/sentinel/internal/scheduler"
	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultThreshold = 3
)

const (
	StatusOnline     = "Online"
	StatusHealthy    = "HEALTHY"
	StatusDiagnosing = "DIAGNOSING"
)

// Checker runs one round of layered checks.
type Checker interface {
	Check(ctx context.Context) types.Snapshot
}

// Diagnoser assigns blame for an unhealthy snapshot.
type Diagnoser interface {
	Diagnose(ctx context.Context, snap types.Snapshot) diagnose.Verdict
}

// RoundObserver is notified after every round.
type RoundObserver interface {
	ObserveRound(healthy bool, consecutiveFailures int, took time.Duration)
}

type Option func(*Loop)

func WithSink(s sink.StateSink) Option {
	return func(l *Loop) {
		if s != nil {
			l.sink = s
		}
	}
}

// WithScheduler attaches periodic tasks that run at the start of a round.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(l *Loop) {
		l.scheduler = s
	}
}

func WithObserver(o RoundObserver) Option {
	return func(l *Loop) {
		l.observer = o
	}
}

func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithThreshold(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.threshold = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loop owns the consecutive-failure counter. It is driven by a single
// goroutine and needs no locking.
type Loop struct {
	checker   Checker
	diagnoser Diagnoser
	sink      sink.StateSink
	scheduler *scheduler.Scheduler
	observer  RoundObserver
	clock     clock.Clock
	interval  time.Duration
	threshold int
	logger    *zap.Logger

	consecutive int
}

func New(checker Checker, diagnoser Diagnoser, opts ...Option) *Loop {
	l := &Loop{
		checker:   checker,
		diagnoser: diagnoser,
		clock:     clock.New(),
		interval:  DefaultInterval,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sink == nil {
		l.sink = sink.NewNoop(l.logger)
	}
	return l
}

// Round is the outcome of one RunRound call. Verdict is nil unless fault
// isolation ran.
type Round struct {
	Snapshot            types.Snapshot
	Healthy             bool
	ConsecutiveFailures int
	Verdict             *diagnose.Verdict
}

// ConsecutiveFailures reports the current debounce count.
func (l *Loop) ConsecutiveFailures() int {
	return l.consecutive
}

// RunRound runs one round. A panic anywhere in the round is returned as an
// error. A round whose ctx ends during the checks is discarded: the counter
// and the sinks are left untouched and ctx.Err() is returned.
func (l *Loop) RunRound(ctx context.Context) (round Round, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor round panicked: %v", r)
		}
	}()

	start := l.clock.Now()
	snap := l.checker.Check(ctx)
	round = Round{Snapshot: snap, Healthy: snap.Healthy()}
	if err := ctx.Err(); err != nil {
		// Probes cut short by shutdown say nothing about the network.
		return round, err
	}

	if round.Healthy {
		l.consecutive = 0
		l.publishHealthy(snap)
	} else {
		l.consecutive++
		l.logger.Warn("health check failed",
			zap.Int("consecutive_failures", l.consecutive),
			zap.Int("threshold", l.threshold),
			zap.Bool("router_reachable", snap.RouterReachable()),
			zap.Bool("dns_ok", snap.DNS.AllSucceeded),
			zap.Bool("http_ok", snap.HTTP.AllSucceeded),
		)
		// The counter keeps growing past the threshold so isolation repeats
		// every unhealthy round.
		if l.consecutive >= l.threshold {
			verdict := l.isolate(ctx, snap)
			round.Verdict = &verdict
		}
	}
	round.ConsecutiveFailures = l.consecutive

	if l.observer != nil {
		l.observer.ObserveRound(round.Healthy, l.consecutive, l.clock.Since(start))
	}
	if f, ok := l.sink.(sink.Flusher); ok {
		l.check("flush", f.Flush())
	}
	return round, nil
}

func (l *Loop) isolate(ctx context.Context, snap types.Snapshot) diagnose.Verdict {
	l.logger.Error("outage confirmed, running fault isolation",
		zap.Int("consecutive_failures", l.consecutive),
		zap.Strings("failed_dns", snap.DNS.FailedTargets),
		zap.Strings("failed_http", snap.HTTP.FailedTargets),
	)
	l.update("status", StatusDiagnosing)
	verdict := l.diagnoser.Diagnose(ctx, snap)
	l.update("status", verdict.Blame.Status())
	l.logger.Info("diagnosis complete",
		zap.String("blame", verdict.Blame.String()),
		zap.String("detail", verdict.Detail),
	)
	return verdict
}

func (l *Loop) publishHealthy(snap types.Snapshot) {
	l.update("status", StatusHealthy)
	l.update("blame", types.BlameNone)

	l.update("router_latency", snap.RouterLatencyMs)
	l.update("router_health_score", snap.RouterHealth.HealthScore)
	l.update("packet_loss", snap.RouterHealth.PacketLossRate)
	if snap.RouterHealth.JitterMs != nil {
		l.update("router_jitter", snap.RouterHealth.JitterMs)
	}
	if snap.ISPGateway != nil {
		l.update("isp_gateway_latency", snap.ISPGateway.LatencyMs)
	}

	l.update("dns_latency", snap.DNS.AvgLatencyMs)
	l.update("dns_success_rate", ratio(snap.DNS))
	l.update("http_latency", snap.HTTP.AvgLatencyMs)
	l.update("http_success_rate", ratio(snap.HTTP))
	if snap.JitterMs != nil {
		l.update("jitter", snap.JitterMs)
	}

	l.logger.Info("network healthy",
		zap.Float64p("router_ms", snap.RouterLatencyMs),
		zap.Int("router_score", snap.RouterHealth.HealthScore),
		zap.Float64p("dns_ms", snap.DNS.AvgLatencyMs),
		zap.Float64p("http_ms", snap.HTTP.AvgLatencyMs),
		zap.Float64p("jitter_ms", snap.JitterMs),
	)
}

func ratio(s types.LayerSummary) string {
	return fmt.Sprintf("%d/%d", s.SuccessCount, s.Total)
}

func (l *Loop) update(key string, value any) {
	l.check(key, l.sink.UpdateState(key, value))
}

func (l *Loop) check(what string, err error) {
	if err != nil {
		l.logger.Warn("state sink error", zap.String("key", what), zap.Error(err))
	}
}

// Run loops until ctx is cancelled. Rounds never overlap: a round that
// overruns the interval is followed immediately by the next.
func (l *Loop) Run(ctx context.Context) error {
	if l.sink.Connected() {
		l.update("status", StatusOnline)
	} else {
		l.logger.Warn("state sink offline, running in offline mode")
	}
	l.logger.Info("monitor started", zap.Duration("interval", l.interval), zap.Int("threshold", l.threshold))

	for {
		if ctx.Err() != nil {
			return nil
		}
		start := l.clock.Now()
		if l.scheduler != nil {
			l.scheduler.RunPending(ctx)
		}
		if _, err := l.RunRound(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Error("monitor round failed", zap.Error(err))
		}

		wait := nextWait(l.interval, l.clock.Since(start))
		if wait <= 0 {
			continue
		}
		timer := l.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// nextWait is the sleep before the next round, floored at zero.
func nextWait(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}
