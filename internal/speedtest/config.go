package speedtest

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/config"
	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/sink"
)

// FromConfig orders the HTTP download estimate and speedtest-cli as
// configured.
func FromConfig(cfg config.Config, out sink.StateSink, client *http.Client, run probe.CommandRunner, logger *zap.Logger) *Runner {
	st := cfg.Speedtest
	download := probe.NewDownloader(client, probe.DownloaderConfig{
		URL:           st.DownloadURL,
		LatencyURL:    st.LatencyURL,
		Bytes:         int64(st.DownloadSize),
		Timeout:       cfg.Probes.ThroughputTimeout,
		RateLimitMbps: st.RateLimitMbps,
	})
	cli := probe.NewSpeedtestCLI(st.CLIPath, cfg.Probes.ThroughputTimeout, run)
	if st.HTTPFirst() {
		return NewRunner(out, logger, download, cli)
	}
	return NewRunner(out, logger, cli, download)
}
