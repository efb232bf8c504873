// Package metrics mirrors monitor state into Prometheus collectors and
// writes them to a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const namespace = "netsentinel"

// Store is a StateSink and round observer. Numeric state keys become gauges;
// status and blame become one-hot info gauges.
type Store struct {
	registry *prometheus.Registry
	path     string

	state       *prometheus.GaugeVec
	status      *prometheus.GaugeVec
	blame       *prometheus.GaugeVec
	events      *prometheus.CounterVec
	rounds      *prometheus.CounterVec
	consecutive prometheus.Gauge
	roundTime   prometheus.Histogram

	mu         sync.Mutex
	lastStatus string
	lastBlame  string
}

var (
	_ sink.StateSink = (*Store)(nil)
	_ sink.Flusher   = (*Store)(nil)
)

// NewStore builds a Store. An empty path keeps the collectors in memory only.
func NewStore(path string) *Store {
	s := &Store{
		registry: prometheus.NewRegistry(),
		path:     path,
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_value",
			Help:      "Latest numeric value published for a state key.",
		}, []string{"key"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Current monitor status, 1 for the active value.",
		}, []string{"status"}),
		blame: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blame",
			Help:      "Current blame code, 1 for the active value.",
		}, []string{"blame"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Fault events emitted by type and severity.",
		}, []string{"event_type", "severity"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Health-check rounds by result.",
		}, []string{"result"}),
		consecutive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Unhealthy rounds in a row.",
		}),
		roundTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Wall time of one health-check round.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
	s.registry.MustRegister(s.state, s.status, s.blame, s.events, s.rounds, s.consecutive, s.roundTime)
	return s
}

// Registry exposes the underlying registry.
func (s *Store) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Store) UpdateState(key string, value any) error {
	switch key {
	case "status":
		s.oneHot(s.status, &s.lastStatus, sink.Format(value))
		return nil
	case "blame":
		s.oneHot(s.blame, &s.lastBlame, sink.Format(value))
		return nil
	}
	if v, ok := sink.Float(value); ok {
		s.state.WithLabelValues(key).Set(v)
		return nil
	}
	// Absent readings drop the series rather than report a stale value.
	if p, ok := value.(*float64); ok && p == nil {
		s.state.DeleteLabelValues(key)
	}
	return nil
}

func (s *Store) oneHot(vec *prometheus.GaugeVec, last *string, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *last != "" && *last != value {
		vec.DeleteLabelValues(*last)
	}
	vec.WithLabelValues(value).Set(1)
	*last = value
}

func (s *Store) LogEvent(event types.Event) error {
	s.events.WithLabelValues(string(event.Type), string(event.Severity)).Inc()
	return nil
}

// Connected is false: the textfile is a side channel and never counts as
// the connected sink.
func (s *Store) Connected() bool {
	return false
}

// ObserveRound records one round's outcome.
func (s *Store) ObserveRound(healthy bool, consecutiveFailures int, took time.Duration) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	s.rounds.WithLabelValues(result).Inc()
	s.consecutive.Set(float64(consecutiveFailures))
	s.roundTime.Observe(took.Seconds())
}

// Flush writes the textfile when a path is configured.
func (s *Store) Flush() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(s.path, s.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
