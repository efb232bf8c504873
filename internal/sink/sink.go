// Package sink defines where monitor state and events are published.
package sink

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

// StateSink receives state updates and fault events. Implementations are
// best effort; callers log returned errors and continue.
type StateSink interface {
	UpdateState(key string, value any) error
	LogEvent(event types.Event) error
	Connected() bool
}

// Flusher is implemented by sinks that buffer and persist once per round.
type Flusher interface {
	Flush() error
}

// Closer is implemented by sinks holding connections or files.
type Closer interface {
	Close() error
}

// Noop is the offline sink. It only logs what would have been published.
type Noop struct {
	logger *zap.Logger
}

var _ StateSink = Noop{}

func NewNoop(logger *zap.Logger) Noop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Noop{logger: logger}
}

func (n Noop) UpdateState(key string, value any) error {
	if n.logger != nil {
		n.logger.Debug("would update state", zap.String("key", key), zap.String("value", Format(value)))
	}
	return nil
}

func (n Noop) LogEvent(event types.Event) error {
	if n.logger != nil {
		n.logger.Debug("would log event",
			zap.String("event_type", string(event.Type)),
			zap.String("target", event.Target),
			zap.String("severity", string(event.Severity)),
		)
	}
	return nil
}

func (Noop) Connected() bool {
	return false
}

// Multi fans every call out to each sink and combines their errors.
type Multi struct {
	sinks []StateSink
}

var _ StateSink = Multi{}

func NewMulti(sinks ...StateSink) Multi {
	kept := make([]StateSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return Multi{sinks: kept}
}

func (m Multi) UpdateState(key string, value any) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.UpdateState(key, value))
	}
	return err
}

func (m Multi) LogEvent(event types.Event) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.LogEvent(event))
	}
	return err
}

// Connected reports whether any member is connected.
func (m Multi) Connected() bool {
	for _, s := range m.sinks {
		if s.Connected() {
			return true
		}
	}
	return false
}

func (m Multi) Flush() error {
	var err error
	for _, s := range m.sinks {
		if f, ok := s.(Flusher); ok {
			err = multierr.Append(err, f.Flush())
		}
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, s := range m.sinks {
		if c, ok := s.(Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// Format renders a state value the way every sink publishes it. Nil
// pointers become an empty string.
func Format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case *float64:
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%g", *v)
	case float64:
		return fmt.Sprintf("%g", v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Float extracts a numeric value for sinks that only accept numbers.
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
