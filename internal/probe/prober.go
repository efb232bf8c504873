package probe

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

// Hard upper bounds for every probe timeout.
const (
	MaxPingTimeout       = 4 * time.Second
	MaxDNSTimeout        = 3 * time.Second
	MaxHTTPTimeout       = 10 * time.Second
	MaxTracerouteTimeout = 30 * time.Second
	MaxThroughputTimeout = 120 * time.Second
)

const userAgent = "netsentinel/1.0"

// Prober is the probe capability consumed by the aggregators. Implementations
// never fail: every error collapses into a failed ProbeResult.
type Prober interface {
	Ping(ctx context.Context, host string, timeout time.Duration) types.ProbeResult
	Resolve(ctx context.Context, hostname, server string, timeout time.Duration) types.ProbeResult
	HTTPGet(ctx context.Context, url string, timeout time.Duration) types.ProbeResult
	Traceroute(ctx context.Context, target string) string
}

// CommandRunner executes an external tool and returns its output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecCommand runs name via os/exec, returning combined output.
func ExecCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PingFunc sends one echo request and returns the round-trip time.
type PingFunc func(ctx context.Context, host string, timeout time.Duration) (time.Duration, error)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Logger            *zap.Logger
	HTTPClient        *http.Client
	RunCommand        CommandRunner
	Ping              PingFunc
	TracerouteTimeout time.Duration
}

// Set is the network-backed Prober.
type Set struct {
	logger            *zap.Logger
	httpClient        *http.Client
	runCommand        CommandRunner
	ping              PingFunc
	tracerouteTimeout time.Duration
}

var _ Prober = (*Set)(nil)

func NewSet(deps Dependencies) *Set {
	s := &Set{
		logger:            deps.Logger,
		httpClient:        deps.HTTPClient,
		runCommand:        deps.RunCommand,
		ping:              deps.Ping,
		tracerouteTimeout: clampTimeout(deps.TracerouteTimeout, MaxTracerouteTimeout, MaxTracerouteTimeout),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.httpClient == nil {
		s.httpClient = NewHTTPClient()
	}
	if s.runCommand == nil {
		s.runCommand = ExecCommand
	}
	if s.ping == nil {
		s.ping = PingICMP
	}
	return s
}

// NewHTTPClient returns a client that opens a fresh connection per request so
// consecutive latency samples are comparable.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	return &http.Client{Transport: transport}
}

func (s *Set) Ping(ctx context.Context, host string, timeout time.Duration) (res types.ProbeResult) {
	defer s.recoverProbe("ping", host, &res)
	timeout = clampTimeout(timeout, 2*time.Second, MaxPingTimeout)
	rtt, err := s.ping(ctx, host, timeout)
	return s.result("ping", host, rtt, wrapErr("ping", host, err))
}

func (s *Set) Resolve(ctx context.Context, hostname, server string, timeout time.Duration) (res types.ProbeResult) {
	target := hostname + "@" + server
	defer s.recoverProbe("dns", target, &res)
	timeout = clampTimeout(timeout, 3*time.Second, MaxDNSTimeout)
	rtt, err := resolveA(ctx, hostname, server, timeout)
	return s.result("dns", target, rtt, wrapErr("dns", target, err))
}

func (s *Set) HTTPGet(ctx context.Context, url string, timeout time.Duration) (res types.ProbeResult) {
	defer s.recoverProbe("http", url, &res)
	timeout = clampTimeout(timeout, 5*time.Second, MaxHTTPTimeout)
	rtt, err := httpGet(ctx, s.httpClient, url, timeout)
	return s.result("http", url, rtt, wrapErr("http", url, err))
}

// Traceroute returns the raw tool output, or a failure line when the tool
// could not run at all.
func (s *Set) Traceroute(ctx context.Context, target string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("Traceroute failed: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, s.tracerouteTimeout)
	defer cancel()
	data, err := s.runCommand(ctx, "traceroute", "-n", "-m", "10", "-w", "2", target)
	if err != nil && len(data) == 0 {
		s.logger.Warn("traceroute failed", zap.String("target", target), zap.Error(err))
		return fmt.Sprintf("Traceroute failed: %v", err)
	}
	return string(data)
}

func (s *Set) result(op, target string, rtt time.Duration, err error) types.ProbeResult {
	if err != nil {
		s.logger.Debug("probe failed",
			zap.String("op", op),
			zap.String("target", target),
			zap.String("kind", Kind(err)),
			zap.Error(err),
		)
		return types.Failed()
	}
	return types.Succeeded(Milliseconds(rtt))
}

func (s *Set) recoverProbe(op, target string, res *types.ProbeResult) {
	if r := recover(); r != nil {
		s.logger.Error("probe panicked", zap.String("op", op), zap.String("target", target), zap.Any("panic", r))
		*res = types.Failed()
	}
}

// Milliseconds converts d to milliseconds rounded to two places.
func Milliseconds(d time.Duration) float64 {
	return types.Round(float64(d)/float64(time.Millisecond), 2)
}

func clampTimeout(v, def, max time.Duration) time.Duration {
	if v <= 0 {
		v = def
	}
	if v > max {
		v = max
	}
	return v
}
