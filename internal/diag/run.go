package diag

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/netsentinelhq/sentinel/internal/config"
	"github.com/netsentinelhq/sentinel/internal/diagnose"
	"github.com/netsentinelhq/sentinel/internal/health"
	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Now        func() time.Time
	RunCommand probe.CommandRunner
	Prober     probe.Prober
	Discover   config.GatewayDiscoverer
	Stdout     io.Writer
	Logger     *zap.Logger
}

// Report is the one-shot diagnostic written by Run.
type Report struct {
	GeneratedAt      time.Time       `json:"generated_at" yaml:"generated_at"`
	ConfigPath       string          `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	InstanceID       string          `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	Router           string          `json:"router" yaml:"router"`
	RouterDiscovered bool            `json:"router_discovered" yaml:"router_discovered"`
	Snapshot         types.Snapshot  `json:"snapshot" yaml:"snapshot"`
	Healthy          bool            `json:"healthy" yaml:"healthy"`
	Blame            types.BlameCode `json:"blame" yaml:"blame"`
	Rule             string          `json:"rule" yaml:"rule"`
	Detail           string          `json:"detail" yaml:"detail"`
	Event            *eventReport    `json:"event,omitempty" yaml:"event,omitempty"`
	Routes           string          `json:"routes,omitempty" yaml:"routes,omitempty"`
	Warnings         []string        `json:"warnings" yaml:"warnings"`
}

type eventReport struct {
	Type       types.EventType `json:"event_type" yaml:"event_type"`
	Timestamp  time.Time       `json:"ts" yaml:"ts"`
	Target     string          `json:"target" yaml:"target"`
	Details    string          `json:"details" yaml:"details"`
	Severity   types.Severity  `json:"severity" yaml:"severity"`
	IncidentID string          `json:"incident_id,omitempty" yaml:"incident_id,omitempty"`
}

// Run executes a single health round, forces fault isolation on it regardless
// of the debounce counter and writes the result as JSON or YAML.
func Run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RunCommand == nil {
		deps.RunCommand = probe.ExecCommand
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	fs := flag.NewFlagSet("diag", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to config file")
	outPath := fs.String("output", "", "write the report here instead of stdout")
	format := fs.String("format", formatJSON, "report format: json or yaml")
	dataDirFlag := fs.String("data-dir", "", "override the state directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	*format = strings.ToLower(strings.TrimSpace(*format))
	if *format != formatJSON && *format != formatYAML {
		return fmt.Errorf("unsupported format %q (want json or yaml)", *format)
	}

	report := Report{
		GeneratedAt: deps.Now().UTC(),
		Warnings:    make([]string, 0, 4),
	}

	path := config.ResolvePath(*configPath)
	cfg, err := config.Load(ctx, path)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("config unavailable (%s), using defaults: %v", path, err))
		cfg = config.Config{}
		cfg.ApplyDefaults()
	} else {
		report.ConfigPath = path
	}

	discovered, err := cfg.ResolveRouter(deps.Discover)
	if err != nil {
		report.Warnings = append(report.Warnings, err.Error())
	}
	report.Router = cfg.Monitoring.Targets.Router
	report.RouterDiscovered = discovered

	dataDir := strings.TrimSpace(*dataDirFlag)
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir != "" {
		state, err := config.LoadState(ctx, dataDir)
		if err != nil {
			report.Warnings = append(report.Warnings, err.Error())
		} else {
			report.InstanceID = state.InstanceID
		}
	}

	prober := deps.Prober
	if prober == nil {
		prober = probe.NewSet(probe.Dependencies{Logger: deps.Logger, RunCommand: deps.RunCommand})
	}

	snap := health.FromConfig(prober, cfg, deps.Logger).Check(ctx)
	report.Snapshot = snap
	report.Healthy = snap.Healthy()

	isolator := diagnose.NewIsolator(prober, sink.NewNoop(deps.Logger), diagnose.Dependencies{
		Logger: deps.Logger,
		Now:    deps.Now,
	})
	verdict := isolator.Diagnose(ctx, snap)
	report.Blame = verdict.Blame
	report.Rule = verdict.Rule
	report.Detail = verdict.Detail
	if e := verdict.Event; e != nil {
		report.Event = &eventReport{
			Type:       e.Type,
			Timestamp:  e.Timestamp.UTC(),
			Target:     e.Target,
			Details:    e.Details,
			Severity:   e.Severity,
			IncidentID: e.IncidentID,
		}
	}

	routes, err := deps.RunCommand(ctx, "ip", "route")
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("ip route failed: %v", err))
	}
	report.Routes = strings.TrimSpace(string(routes))

	payload, err := encode(report, *format)
	if err != nil {
		return err
	}
	if *outPath == "" {
		_, err := deps.Stdout.Write(payload)
		return err
	}
	if err := config.WriteFileAtomic(*outPath, payload, 0o600); err != nil {
		return fmt.Errorf("write report %q: %w", *outPath, err)
	}
	return nil
}

func encode(report Report, format string) ([]byte, error) {
	if format == formatYAML {
		data, err := yaml.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("marshal report: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
