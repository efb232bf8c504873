package diagnose

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/probe"
	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

// traceExcerpt is how much of the traceroute tail lands in event details.
const traceExcerpt = 200

// Tracer runs a traceroute. probe.Prober satisfies it.
type Tracer interface {
	Traceroute(ctx context.Context, target string) string
}

var _ Tracer = (probe.Prober)(nil)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
	Rules  []Rule
}

// Isolator evaluates a snapshot and publishes the verdict.
type Isolator struct {
	tracer Tracer
	sink   sink.StateSink
	rules  []Rule
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewIsolator(tracer Tracer, out sink.StateSink, deps Dependencies) *Isolator {
	i := &Isolator{
		tracer: tracer,
		sink:   out,
		rules:  deps.Rules,
		logger: deps.Logger,
		now:    deps.Now,
		newID:  deps.NewID,
	}
	if i.sink == nil {
		i.sink = sink.NewNoop(deps.Logger)
	}
	if i.rules == nil {
		i.rules = Rules
	}
	if i.logger == nil {
		i.logger = zap.NewNop()
	}
	if i.now == nil {
		i.now = time.Now
	}
	if i.newID == nil {
		i.newID = uuid.NewString
	}
	return i
}

// Diagnose assigns blame for snap. Sink failures are logged and never
// returned.
func (i *Isolator) Diagnose(ctx context.Context, snap types.Snapshot) Verdict {
	v := EvaluateRules(i.rules, snap)

	if v.Event != nil {
		event := *v.Event
		event.Timestamp = i.now()
		event.IncidentID = i.newID()
		if v.TraceTarget != "" && i.tracer != nil {
			trace := i.tracer.Traceroute(ctx, v.TraceTarget)
			event.Details = fmt.Sprintf("%s Trace: %s", event.Details, tail(trace, traceExcerpt))
		}
		v.Event = &event

		i.logger.Warn("fault isolated",
			zap.String("blame", v.Blame.String()),
			zap.String("rule", v.Rule),
			zap.String("target", event.Target),
			zap.String("severity", string(event.Severity)),
			zap.String("incident_id", event.IncidentID),
		)
		i.publish("event", i.sink.LogEvent(event))
		if event.Severity == types.SeverityCritical {
			i.publish("last_outage", i.sink.UpdateState("last_outage", fmt.Sprintf("%s: %s", event.Type, event.Details)))
		}
	} else {
		i.logger.Info("checks passing, issue was transient", zap.String("blame", v.Blame.String()))
	}

	i.publish("blame", i.sink.UpdateState("blame", v.Blame))
	i.publish("fault_detail", i.sink.UpdateState("fault_detail", v.Detail))
	return v
}

func (i *Isolator) publish(what string, err error) {
	if err != nil {
		i.logger.Warn("state sink update failed", zap.String("key", what), zap.Error(err))
	}
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
