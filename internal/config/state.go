package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const StateFileName = "state.yaml"

// State identifies this monitor instance across restarts. It holds no health
// history.
type State struct {
	InstanceID string    `yaml:"instance_id"`
	CreatedAt  time.Time `yaml:"created_at"`
}

func StatePath(dir string) string {
	return filepath.Join(dir, StateFileName)
}

func LoadState(ctx context.Context, dir string) (State, error) {
	var state State
	path := StatePath(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		return state, fmt.Errorf("read state file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state file %q: %w", path, err)
	}
	if state.InstanceID == "" {
		return state, fmt.Errorf("state file %q has no instance_id", path)
	}

	return state, nil
}

func SaveState(ctx context.Context, dir string, state State) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure state dir %q: %w", dir, err)
	}

	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return WriteFileAtomic(StatePath(dir), data, 0o600)
}

// LoadOrCreateState returns the persisted state, creating a fresh instance
// identity on first start.
func LoadOrCreateState(ctx context.Context, dir string, now func() time.Time) (State, error) {
	state, err := LoadState(ctx, dir)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return State{}, err
	}
	if now == nil {
		now = time.Now
	}
	state = State{
		InstanceID: uuid.NewString(),
		CreatedAt:  now().UTC(),
	}
	if err := SaveState(ctx, dir, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// ShortID is the first uuid group, used in MQTT client and entity IDs.
func (s State) ShortID() string {
	if len(s.InstanceID) >= 8 {
		return s.InstanceID[:8]
	}
	return s.InstanceID
}
