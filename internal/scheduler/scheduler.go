// Package scheduler triggers fixed-period tasks from the monitor loop.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Task is a named job due every Every. The first run is one period after
// registration unless Immediate is set.
type Task struct {
	Name      string
	Every     time.Duration
	Immediate bool
	Run       func(ctx context.Context) error
}

type Scheduler struct {
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	task Task
	next time.Time
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   clock.New(),
		logger:  zap.NewNop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers or replaces a task. Tasks with no period or no Run are
// ignored.
func (s *Scheduler) Add(task Task) {
	if task.Every <= 0 || task.Run == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.clock.Now().Add(task.Every)
	if task.Immediate {
		next = s.clock.Now()
	}
	s.entries[task.Name] = &entry{task: task, next: next}
}

// Next reports when name is next due.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// RunPending runs every due task inline, in name order, and returns the names
// that ran. A task that fell several periods behind runs once.
func (s *Scheduler) RunPending(ctx context.Context) []string {
	now := s.clock.Now()

	s.mu.Lock()
	due := make([]Task, 0, len(s.entries))
	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		due = append(due, e.task)
		for !now.Before(e.next) {
			e.next = e.next.Add(e.task.Every)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	ran := make([]string, 0, len(due))
	for _, task := range due {
		if ctx.Err() != nil {
			break
		}
		s.run(ctx, task)
		ran = append(ran, task.Name)
	}
	return ran
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()
	start := s.clock.Now()
	if err := task.Run(ctx); err != nil {
		s.logger.Warn("scheduled task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled task finished", zap.String("task", task.Name), zap.Duration("took", s.clock.Since(start)))
}
