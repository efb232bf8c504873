package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/netsentinelhq/sentinel/internal/probe"
)

const (
	envConfigPath     = "CONFIG_PATH"
	envMQTTBroker     = "SENTINEL_MQTT_BROKER"
	envMQTTUsername   = "SENTINEL_MQTT_USERNAME"
	envMQTTPassword   = "SENTINEL_MQTT_PASSWORD"
	envLogLevel       = "SENTINEL_LOG_LEVEL"
	DefaultConfigPath = "config/config.yaml"
)

// fallbackConfigPaths are tried in order when CONFIG_PATH is unset and the
// default path does not exist.
var fallbackConfigPaths = []string{
	"../../config/config.yaml",
	"/etc/netsentinel/config.yaml",
}

// Hard upper bounds for probe timeouts. A round can never take longer than
// the sum of these, so the monitor loop always makes progress.
const (
	MaxPingTimeout       = probe.MaxPingTimeout
	MaxDNSTimeout        = probe.MaxDNSTimeout
	MaxHTTPTimeout       = probe.MaxHTTPTimeout
	MaxTracerouteTimeout = probe.MaxTracerouteTimeout
	MaxThroughputTimeout = probe.MaxThroughputTimeout
)

type Config struct {
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Probes       ProbeConfig        `yaml:"probes"`
	RouterHealth RouterHealthConfig `yaml:"router_health"`
	Speedtest    SpeedtestConfig    `yaml:"speedtest"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	DataDir      string             `yaml:"data_dir"`
}

type MonitoringConfig struct {
	IntervalSeconds  int           `yaml:"interval_seconds"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Targets          TargetsConfig `yaml:"targets"`
	DNSDomains       []string      `yaml:"dns_domains"`
	HTTPEndpoints    []string      `yaml:"http_endpoints"`
}

type TargetsConfig struct {
	Router     string `yaml:"router"`
	ISPGateway string `yaml:"isp_gateway"`
	PublicDNS1 string `yaml:"public_dns_1"`
	PublicDNS2 string `yaml:"public_dns_2"`
}

// Resolvers returns the configured public DNS servers in order.
func (t TargetsConfig) Resolvers() []string {
	out := make([]string, 0, 2)
	for _, s := range []string{t.PublicDNS1, t.PublicDNS2} {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type ProbeConfig struct {
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	DNSTimeout        time.Duration `yaml:"dns_timeout"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	TracerouteTimeout time.Duration `yaml:"traceroute_timeout"`
	ThroughputTimeout time.Duration `yaml:"throughput_timeout"`
}

type RouterHealthConfig struct {
	Samples  int           `yaml:"samples"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SpeedtestConfig struct {
	IntervalHours int      `yaml:"interval_hours"`
	PreferHTTP    *bool    `yaml:"prefer_http"`
	DownloadURL   string   `yaml:"download_url"`
	LatencyURL    string   `yaml:"latency_url"`
	DownloadSize  ByteSize `yaml:"download_size"`
	RateLimitMbps float64  `yaml:"rate_limit_mbps"`
	CLIPath       string   `yaml:"cli_path"`
}

// HTTPFirst reports whether the download estimate runs before speedtest-cli.
func (s SpeedtestConfig) HTTPFirst() bool {
	return s.PreferHTTP == nil || *s.PreferHTTP
}

type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	ClientID        string `yaml:"client_id"`
}

type LoggingConfig struct {
	FilePath string `yaml:"file_path"`
	Level    string `yaml:"level"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

type WebhookConfig struct {
	URL string `yaml:"url"`
}

// Interval returns the round cadence.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Monitoring.IntervalSeconds) * time.Second
}

// Load reads path, loads an optional .env beside it, applies environment
// overrides and defaults.
func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load env file %q: %w", envFile, err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadFromEnv resolves the config path from CONFIG_PATH, falling back to the
// default and well-known locations.
func LoadFromEnv(ctx context.Context) (Config, error) {
	return Load(ctx, ResolvePath(os.Getenv(envConfigPath)))
}

// ResolvePath picks the first existing candidate; explicit paths win.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := append([]string{DefaultConfigPath}, fallbackConfigPaths...)
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return DefaultConfigPath
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envMQTTBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv(envMQTTUsername); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv(envMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// ApplyDefaults fills zero values and clamps probe timeouts to their bounds.
func (c *Config) ApplyDefaults() {
	m := &c.Monitoring
	if m.IntervalSeconds == 0 {
		m.IntervalSeconds = 30
	}
	if m.FailureThreshold <= 0 {
		m.FailureThreshold = 3
	}

	p := &c.Probes
	p.PingTimeout = bounded(p.PingTimeout, 2*time.Second, MaxPingTimeout)
	p.DNSTimeout = bounded(p.DNSTimeout, 3*time.Second, MaxDNSTimeout)
	p.HTTPTimeout = bounded(p.HTTPTimeout, 5*time.Second, MaxHTTPTimeout)
	p.TracerouteTimeout = bounded(p.TracerouteTimeout, MaxTracerouteTimeout, MaxTracerouteTimeout)
	p.ThroughputTimeout = bounded(p.ThroughputTimeout, MaxThroughputTimeout, MaxThroughputTimeout)

	r := &c.RouterHealth
	if r.Samples <= 0 {
		r.Samples = 5
	}
	if r.Interval <= 0 {
		r.Interval = 100 * time.Millisecond
	}
	r.Timeout = bounded(r.Timeout, time.Second, MaxPingTimeout)

	s := &c.Speedtest
	if s.IntervalHours <= 0 {
		s.IntervalHours = 6
	}
	if s.DownloadURL == "" {
		s.DownloadURL = "https://speed.cloudflare.com/__down"
	}
	if s.LatencyURL == "" {
		s.LatencyURL = "https://speed.cloudflare.com/__down?bytes=0"
	}
	if s.DownloadSize <= 0 {
		s.DownloadSize = 25 * 1000 * 1000
	}
	if s.CLIPath == "" {
		s.CLIPath = "speedtest-cli"
	}

	q := &c.MQTT
	if q.Port == 0 {
		q.Port = 1883
	}
	if q.TopicPrefix == "" {
		q.TopicPrefix = "netsentinel"
	}
	if q.DiscoveryPrefix == "" {
		q.DiscoveryPrefix = "homeassistant"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/events.csv"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
}

// Validate reports configuration that would stop the monitor from running.
// A missing router is not an error here; callers discover the default
// gateway first.
func (c Config) Validate() error {
	if c.Monitoring.IntervalSeconds <= 0 {
		return fmt.Errorf("monitoring.interval_seconds must be positive, got %d", c.Monitoring.IntervalSeconds)
	}
	if c.RouterHealth.Samples <= 0 {
		return fmt.Errorf("router_health.samples must be positive, got %d", c.RouterHealth.Samples)
	}
	if c.MQTT.Broker != "" && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return fmt.Errorf("mqtt.port out of range: %d", c.MQTT.Port)
	}
	return nil
}

func bounded(v, def, max time.Duration) time.Duration {
	if v <= 0 {
		v = def
	}
	if v > max {
		v = max
	}
	return v
}
