// Package cloudprobe checks the home network from outside and reports the
// result to the Home Assistant webhook.
package cloudprobe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	checkTimeout    = 5 * time.Second
	defaultInterval = time.Minute
)

// Reporter delivers a status report. uplink.Client satisfies it.
type Reporter interface {
	SendStatus(ctx context.Context, status string, latencyMs *float64) error
}

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *zap.Logger
	Timeout    time.Duration
}

type Prober struct {
	target   string
	reporter Reporter
	client   *http.Client
	clock    clock.Clock
	logger   *zap.Logger
	timeout  time.Duration
}

func New(target string, reporter Reporter, deps Dependencies) *Prober {
	p := &Prober{
		target:   target,
		reporter: reporter,
		client:   deps.HTTPClient,
		clock:    deps.Clock,
		logger:   deps.Logger,
		timeout:  deps.Timeout,
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.timeout <= 0 {
		p.timeout = checkTimeout
	}
	return p
}

// Check HEADs the target, following redirects. Any status below 400 means
// the home endpoint is up.
func (p *Prober) Check(ctx context.Context) types.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.target, nil)
	if err != nil {
		p.logger.Error("build check request", zap.String("target", p.target), zap.Error(err))
		return types.Failed()
	}
	start := p.clock.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("home check failed", zap.String("target", p.target), zap.Error(err))
		return types.Failed()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	latency := p.clock.Since(start)

	if resp.StatusCode >= 400 {
		p.logger.Warn("home check returned error status", zap.Int("status", resp.StatusCode))
		return types.Failed()
	}
	return types.Succeeded(probe.Milliseconds(latency))
}

// Once checks and reports a single time.
func (p *Prober) Once(ctx context.Context) (types.ProbeResult, error) {
	res := p.Check(ctx)
	status := StatusOffline
	if res.Success {
		status = StatusOnline
		p.logger.Info("home is up", zap.Float64p("latency_ms", res.LatencyMs))
	} else {
		p.logger.Warn("home is down", zap.String("target", p.target))
	}
	if p.reporter == nil {
		return res, nil
	}
	if err := p.reporter.SendStatus(ctx, status, res.LatencyMs); err != nil {
		return res, fmt.Errorf("notify home assistant: %w", err)
	}
	return res, nil
}

// Run reports every interval until ctx is cancelled. Failures are logged
// and never end the loop.
func (p *Prober) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultInterval
	}
	p.logger.Info("starting cloud probe", zap.String("target", p.target), zap.Duration("interval", interval))

	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.Once(ctx); err != nil {
			p.logger.Error("report failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
