// Package csvlog appends fault events to a CSV file.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const timeLayout = "2006-01-02 15:04:05"

var header = []string{"timestamp", "event_type", "target", "details", "status"}

// Log is an event-only StateSink. State updates are ignored.
type Log struct {
	mu   sync.Mutex
	path string
}

var _ sink.StateSink = (*Log)(nil)

// Open creates the directory and header when missing.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("csvlog: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeRows(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, header); err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("write header: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	return &Log{path: path}, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) LogEvent(event types.Event) error {
	row := []string{
		event.Timestamp.Local().Format(timeLayout),
		string(event.Type),
		event.Target,
		event.Details,
		string(event.Severity),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := writeRows(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, row); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (l *Log) UpdateState(string, any) error {
	return nil
}

func (l *Log) Connected() bool {
	return false
}

func writeRows(path string, flag int, rows ...[]string) error {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
