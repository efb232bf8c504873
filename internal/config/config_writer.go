package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// SampleConfig is written by "sentinel init".
const SampleConfig = `# Network Sentinel configuration
monitoring:
  interval_seconds: 30
  failure_threshold: 3
  targets:
    router: 192.168.1.1
    # isp_gateway: 10.0.0.1
    public_dns_1: 8.8.8.8
    public_dns_2: 1.1.1.1
  # dns_domains: [google.com, cloudflare.com]
  # http_endpoints: [https://www.google.com/generate_204]
router_health:
  samples: 5
  interval: 100ms
  timeout: 1s
speedtest:
  interval_hours: 6
  prefer_http: true
  download_size: 25MB
mqtt:
  broker: ""
  port: 1883
  topic_prefix: netsentinel
logging:
  file_path: logs/events.csv
  level: info
metrics:
  textfile_path: ""
data_dir: data
`

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place. Empty data is a no-op.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if len(data) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("ensure dir %q: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit file %q: %w", path, err)
	}

	return nil
}

// WriteSample writes SampleConfig to path unless a file already exists there.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %q already exists", path)
	}
	return WriteFileAtomic(path, []byte(SampleConfig), 0o640)
}
