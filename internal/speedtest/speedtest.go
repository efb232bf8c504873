// Package speedtest runs the periodic throughput measurement.
package speedtest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

// ErrNoResult is returned when every tester failed.
var ErrNoResult = errors.New("speedtest: no tester produced a result")

// Runner tries each tester in order and publishes the first result.
type Runner struct {
	testers []probe.ThroughputTester
	sink    sink.StateSink
	logger  *zap.Logger
}

func NewRunner(out sink.StateSink, logger *zap.Logger, testers ...probe.ThroughputTester) *Runner {
	if out == nil {
		out = sink.NewNoop(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]probe.ThroughputTester, 0, len(testers))
	for _, t := range testers {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &Runner{testers: kept, sink: out, logger: logger}
}

// Measure returns the first successful result without publishing it.
func (r *Runner) Measure(ctx context.Context) (types.Throughput, error) {
	var errs []error
	for _, t := range r.testers {
		result, err := t.Measure(ctx)
		if err == nil {
			return result, nil
		}
		r.logger.Warn("speedtest failed", zap.String("tester", t.Name()), zap.String("kind", probe.Kind(err)), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return types.Throughput{}, multierr.Combine(append([]error{ErrNoResult}, errs...)...)
}

// Run measures and publishes download_speed, upload_speed and
// speedtest_latency. Values a tester does not measure are not published.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("running speedtest")
	result, err := r.Measure(ctx)
	if err != nil {
		return err
	}

	publishErr := r.sink.UpdateState("download_speed", result.DownloadMbps)
	if result.UploadMbps != nil {
		publishErr = multierr.Append(publishErr, r.sink.UpdateState("upload_speed", result.UploadMbps))
	}
	if result.LatencyMs != nil {
		publishErr = multierr.Append(publishErr, r.sink.UpdateState("speedtest_latency", result.LatencyMs))
	}
	if publishErr != nil {
		r.logger.Warn("speedtest publish failed", zap.Error(publishErr))
	}

	r.logger.Info("speedtest finished",
		zap.String("source", result.Source),
		zap.Float64("download_mbps", result.DownloadMbps),
		zap.Float64p("upload_mbps", result.UploadMbps),
		zap.Float64p("latency_ms", result.LatencyMs),
	)
	return nil
}
