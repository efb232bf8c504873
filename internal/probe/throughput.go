package probe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VividCortex/ewma"
	"golang.org/x/time/rate"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

// ThroughputTester measures link throughput.
type ThroughputTester interface {
	Name() string
	Measure(ctx context.Context) (types.Throughput, error)
}

// DownloaderConfig configures the HTTP download estimate.
type DownloaderConfig struct {
	URL           string
	LatencyURL    string
	Bytes         int64
	Timeout       time.Duration
	RateLimitMbps float64
	Slice         time.Duration
}

// Downloader estimates download speed by streaming a test object and
// smoothing per-slice throughput with an EWMA.
type Downloader struct {
	client *http.Client
	cfg    DownloaderConfig
}

var _ ThroughputTester = (*Downloader)(nil)

func NewDownloader(client *http.Client, cfg DownloaderConfig) *Downloader {
	if client == nil {
		client = NewHTTPClient()
	}
	cfg.Timeout = clampTimeout(cfg.Timeout, 30*time.Second, MaxThroughputTimeout)
	if cfg.Slice <= 0 {
		cfg.Slice = 100 * time.Millisecond
	}
	if cfg.Bytes <= 0 {
		cfg.Bytes = 25 * 1000 * 1000
	}
	return &Downloader{client: client, cfg: cfg}
}

func (d *Downloader) Name() string {
	return "http-download"
}

func (d *Downloader) Measure(ctx context.Context) (types.Throughput, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	var latency *float64
	if d.cfg.LatencyURL != "" {
		if rtt, err := httpGet(ctx, d.client, d.cfg.LatencyURL, MaxHTTPTimeout); err == nil {
			latency = types.Float(Milliseconds(rtt))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.downloadURL(), nil)
	if err != nil {
		return types.Throughput{}, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return types.Throughput{}, wrapErr("download", d.cfg.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.Throughput{}, &ProtocolError{Op: "download", Target: d.cfg.URL, Reason: "status " + resp.Status}
	}

	bytesPerSec, total, err := d.stream(ctx, resp.Body)
	if err != nil {
		return types.Throughput{}, wrapErr("download", d.cfg.URL, err)
	}
	if total == 0 {
		return types.Throughput{}, &ProtocolError{Op: "download", Target: d.cfg.URL, Reason: "no data received"}
	}

	return types.Throughput{
		DownloadMbps: types.Round(bytesPerSec*8/1e6, 2),
		LatencyMs:    latency,
		Source:       d.Name(),
	}, nil
}

// stream reads body until EOF or the deadline. A deadline after some data has
// arrived ends the measurement rather than failing it.
func (d *Downloader) stream(ctx context.Context, body io.Reader) (float64, int64, error) {
	buf := make([]byte, 32<<10)

	var limiter *rate.Limiter
	if d.cfg.RateLimitMbps > 0 {
		limit := d.cfg.RateLimitMbps * 1e6 / 8
		burst := int(limit)
		if burst < len(buf) {
			burst = len(buf)
		}
		limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}

	avg := ewma.NewMovingAverage()
	start := time.Now()
	sliceStart := start
	var total, sliceBytes int64

	for {
		if limiter != nil {
			if err := limiter.WaitN(ctx, len(buf)); err != nil {
				break
			}
		}
		n, err := body.Read(buf)
		total += int64(n)
		sliceBytes += int64(n)
		if now := time.Now(); now.Sub(sliceStart) >= d.cfg.Slice {
			avg.Add(float64(sliceBytes) / now.Sub(sliceStart).Seconds())
			sliceStart = now
			sliceBytes = 0
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || (isTimeout(err) && total > 0) {
			break
		}
		return 0, total, err
	}

	if v := avg.Value(); v > 0 {
		return v, total, nil
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return 0, total, nil
	}
	return float64(total) / elapsed, total, nil
}

func (d *Downloader) downloadURL() string {
	sep := "?"
	if strings.Contains(d.cfg.URL, "?") {
		sep = "&"
	}
	return d.cfg.URL + sep + "bytes=" + strconv.FormatInt(d.cfg.Bytes, 10)
}

// SpeedtestCLI runs the speedtest-cli tool in --simple mode.
type SpeedtestCLI struct {
	path    string
	timeout time.Duration
	run     CommandRunner
}

var _ ThroughputTester = (*SpeedtestCLI)(nil)

func NewSpeedtestCLI(path string, timeout time.Duration, run CommandRunner) *SpeedtestCLI {
	if path == "" {
		path = "speedtest-cli"
	}
	if run == nil {
		run = ExecCommand
	}
	return &SpeedtestCLI{
		path:    path,
		timeout: clampTimeout(timeout, MaxThroughputTimeout, MaxThroughputTimeout),
		run:     run,
	}
}

func (s *SpeedtestCLI) Name() string {
	return "speedtest-cli"
}

func (s *SpeedtestCLI) Measure(ctx context.Context) (types.Throughput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.run(ctx, s.path, "--simple")
	if err != nil {
		return types.Throughput{}, wrapErr("speedtest", s.path, err)
	}
	result, err := ParseSpeedtestSimple(out)
	if err != nil {
		return types.Throughput{}, err
	}
	result.Source = s.Name()
	return result, nil
}

// ParseSpeedtestSimple parses the three-line "--simple" output:
//
//	Ping: 12.345 ms
//	Download: 93.12 Mbit/s
//	Upload: 11.50 Mbit/s
func ParseSpeedtestSimple(out []byte) (types.Throughput, error) {
	var (
		result      types.Throughput
		hasDownload bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		label, rest, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(label) {
		case "ping":
			result.LatencyMs = types.Float(v)
		case "download":
			result.DownloadMbps = v
			hasDownload = true
		case "upload":
			result.UploadMbps = types.Float(v)
		}
	}
	if !hasDownload {
		return types.Throughput{}, &ProtocolError{Op: "speedtest", Target: "speedtest-cli", Reason: fmt.Sprintf("unrecognised output %q", truncate(string(out), 120))}
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
