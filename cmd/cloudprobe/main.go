// Command cloudprobe runs outside the home network and reports whether the
// home endpoint is reachable to the Home Assistant webhook.
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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/cloudprobe"
	"github.com/netsentinelhq/sentinel/internal/logging"
	"github.com/netsentinelhq/sentinel/internal/uplink"
)

const source = "cloud_probe"

type options struct {
	target   string
	webhook  string
	interval time.Duration
	level    string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "cloudprobe: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "cloudprobe failed: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("cloudprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.target, "target", "", "Home URL to check (required)")
	fs.StringVar(&opts.webhook, "webhook", "", "Home Assistant webhook URL (required)")
	fs.DurationVar(&opts.interval, "interval", time.Minute, "Check interval")
	fs.StringVar(&opts.level, "log-level", "info", "Log level")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.target == "" {
		return opts, errors.New("--target is required")
	}
	if opts.webhook == "" {
		return opts, errors.New("--webhook is required")
	}
	if opts.interval <= 0 {
		return opts, fmt.Errorf("--interval must be positive, got %s", opts.interval)
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	logger := logging.New(opts.level).With(zap.String("source", source))
	defer func() { _ = logger.Sync() }()

	client, err := uplink.NewClient(
		uplink.Config{WebhookURL: opts.webhook, Source: source, InstanceID: uuid.NewString()},
		uplink.Dependencies{Logger: logger},
	)
	if err != nil {
		return err
	}
	return cloudprobe.New(opts.target, client, cloudprobe.Dependencies{Logger: logger}).Run(ctx, opts.interval)
}
