package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/config"
	"github.com/netsentinelhq/sentinel/internal/diag"
	"github.com/netsentinelhq/sentinel/internal/diagnose"
	"github.com/netsentinelhq/sentinel/internal/health"
	"github.com/netsentinelhq/sentinel/internal/logging"
	"github.com/netsentinelhq/sentinel/internal/metrics"
	"github.com/netsentinelhq/sentinel/internal/monitor"
	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/scheduler"
	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/internal/sink/csvlog"
	"github.com/netsentinelhq/sentinel/internal/sink/mqtt"
	"github.com/netsentinelhq/sentinel/internal/speedtest"
	"github.com/netsentinelhq/sentinel/internal/uplink"
)

const speedtestTask = "speedtest"

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "diag":
		err = diag.Run(ctx, os.Args[2:], diag.Dependencies{})
	case "speedtest":
		err = runSpeedtest(ctx, os.Args[2:], os.Stdout)
	case "init":
		err = initConfig(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Network Sentinel")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sentinel run [--config config/config.yaml]")
	fmt.Fprintln(w, "  sentinel diag [--config path] [--data-dir dir] [--output file] [--format json|yaml]")
	fmt.Fprintln(w, "  sentinel speedtest [--config path]")
	fmt.Fprintln(w, "  sentinel init [--config path]")
}

// loadConfig reads path, or resolves it from CONFIG_PATH and the well-known
// locations when empty.
func loadConfig(ctx context.Context, path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv(ctx)
	}
	return config.Load(ctx, path)
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level)
	defer func() { _ = logger.Sync() }()

	discovered, err := cfg.ResolveRouter(nil)
	if err != nil {
		return err
	}
	if discovered {
		logger.Info("router discovered from default gateway", zap.String("router", cfg.Monitoring.Targets.Router))
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	state, err := config.LoadOrCreateState(ctx, cfg.DataDir, time.Now)
	if err != nil {
		return fmt.Errorf("load instance state: %w", err)
	}

	logger.Info("sentinel starting",
		zap.String("instance_id", state.InstanceID),
		zap.String("router", cfg.Monitoring.Targets.Router),
		zap.Duration("interval", cfg.Interval()),
		zap.Int("failure_threshold", cfg.Monitoring.FailureThreshold),
	)

	store := metrics.NewStore(cfg.Metrics.TextfilePath)
	out := sink.NewMulti(buildSinks(cfg, state, store, logger)...)
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("closing sinks", zap.Error(err))
		}
	}()

	prober := probe.NewSet(probe.Dependencies{
		Logger:            logger,
		TracerouteTimeout: cfg.Probes.TracerouteTimeout,
	})
	checker := health.FromConfig(prober, cfg, logger)
	isolator := diagnose.NewIsolator(prober, out, diagnose.Dependencies{Logger: logger})

	sched := scheduler.New(scheduler.WithLogger(logger))
	runner := speedtest.FromConfig(cfg, out, probe.NewHTTPClient(), probe.ExecCommand, logger)
	sched.Add(scheduler.Task{
		Name:  speedtestTask,
		Every: time.Duration(cfg.Speedtest.IntervalHours) * time.Hour,
		Run:   runner.Run,
	})

	loop := monitor.New(checker, isolator,
		monitor.WithSink(out),
		monitor.WithScheduler(sched),
		monitor.WithObserver(store),
		monitor.WithInterval(cfg.Interval()),
		monitor.WithThreshold(cfg.Monitoring.FailureThreshold),
		monitor.WithLogger(logger),
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("sentinel stopped")
	return nil
}

// buildSinks assembles the configured publishers. The event log and metrics
// store are always present; MQTT falls back to a logging no-op when the
// broker is unset or unreachable.
func buildSinks(cfg config.Config, state config.State, store *metrics.Store, logger *zap.Logger) []sink.StateSink {
	sinks := []sink.StateSink{store}

	if events, err := csvlog.Open(cfg.Logging.FilePath); err != nil {
		logger.Warn("event log disabled", zap.String("path", cfg.Logging.FilePath), zap.Error(err))
	} else {
		sinks = append(sinks, events)
	}

	if cfg.MQTT.Broker == "" {
		logger.Info("mqtt broker not configured")
		sinks = append(sinks, sink.NewNoop(logger))
	} else if pub, err := mqtt.Connect(mqttConfig(cfg, state), logger); err != nil {
		logger.Warn("mqtt unavailable", zap.Error(err))
		sinks = append(sinks, sink.NewNoop(logger))
	} else {
		sinks = append(sinks, pub)
	}

	if cfg.Webhook.URL != "" {
		hook, err := uplink.NewClient(
			uplink.Config{WebhookURL: cfg.Webhook.URL, InstanceID: state.InstanceID},
			uplink.Dependencies{Logger: logger},
		)
		if err != nil {
			logger.Warn("webhook disabled", zap.Error(err))
		} else {
			sinks = append(sinks, hook)
		}
	}
	return sinks
}

func mqttConfig(cfg config.Config, state config.State) mqtt.Config {
	m := cfg.MQTT
	clientID := m.ClientID
	if clientID == "" && state.InstanceID != "" {
		clientID = "NetSentinel-" + state.ShortID()
	}
	return mqtt.Config{
		Broker:          m.Broker,
		Port:            m.Port,
		Username:        m.Username,
		Password:        m.Password,
		TopicPrefix:     m.TopicPrefix,
		DiscoveryPrefix: m.DiscoveryPrefix,
		ClientID:        clientID,
		DeviceID:        state.ShortID(),
	}
}

func runSpeedtest(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("speedtest", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level)
	defer func() { _ = logger.Sync() }()

	runner := speedtest.FromConfig(cfg, sink.NewNoop(logger), probe.NewHTTPClient(), probe.ExecCommand, logger)
	result, err := runner.Measure(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Source: %s\n", result.Source)
	fmt.Fprintf(w, "Download: %.2f Mbit/s\n", result.DownloadMbps)
	if result.UploadMbps != nil {
		fmt.Fprintf(w, "Upload: %.2f Mbit/s\n", *result.UploadMbps)
	}
	if result.LatencyMs != nil {
		fmt.Fprintf(w, "Ping: %.2f ms\n", *result.LatencyMs)
	}
	return nil
}

func initConfig(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Where to write the sample configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteSample(*configPath); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote sample configuration to %s\n", *configPath)
	return nil
}
