package speedtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/netsentinelhq/sentinel/internal/config"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

type fakeTester struct {
	name   string
	result types.Throughput
	err    error
	calls  int
}

func (f *fakeTester) Name() string { return f.name }

func (f *fakeTester) Measure(context.Context) (types.Throughput, error) {
	f.calls++
	return f.result, f.err
}

type stateSink struct {
	state map[string]any
}

func (s *stateSink) UpdateState(key string, value any) error {
	s.state[key] = value
	return nil
}

func (s *stateSink) LogEvent(types.Event) error { return nil }
func (s *stateSink) Connected() bool            { return true }

func TestRunPrefersFirstTester(t *testing.T) {
	httpTester := &fakeTester{name: "http-download", result: types.Throughput{DownloadMbps: 180.5, LatencyMs: types.Float(9.1)}}
	cli := &fakeTester{name: "speedtest-cli"}
	out := &stateSink{state: map[string]any{}}

	require.NoError(t, NewRunner(out, nil, httpTester, cli).Run(context.Background()))
	assert.Equal(t, 0, cli.calls)
	assert.Equal(t, 180.5, out.state["download_speed"])
	assert.Equal(t, types.Float(9.1), out.state["speedtest_latency"])
	_, hasUpload := out.state["upload_speed"]
	assert.False(t, hasUpload)
}

func TestRunFallsBack(t *testing.T) {
	httpTester := &fakeTester{name: "http-download", err: errors.New("403")}
	cli := &fakeTester{name: "speedtest-cli", result: types.Throughput{DownloadMbps: 90, UploadMbps: types.Float(10)}}
	out := &stateSink{state: map[string]any{}}

	require.NoError(t, NewRunner(out, nil, httpTester, nil, cli).Run(context.Background()))
	assert.Equal(t, 1, httpTester.calls)
	assert.Equal(t, 90.0, out.state["download_speed"])
	assert.Equal(t, types.Float(10), out.state["upload_speed"])
}

func TestRunAllFail(t *testing.T) {
	out := &stateSink{state: map[string]any{}}
	err := NewRunner(out, nil, &fakeTester{name: "a", err: errors.New("x")}).Run(context.Background())
	require.ErrorIs(t, err, ErrNoResult)
	assert.Empty(t, out.state)

	_, err = NewRunner(nil, nil).Measure(context.Background())
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestFromConfigOrder(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()

	r := FromConfig(cfg, nil, nil, nil, nil)
	require.Len(t, r.testers, 2)
	assert.Equal(t, "http-download", r.testers[0].Name())

	no := false
	cfg.Speedtest.PreferHTTP = &no
	r = FromConfig(cfg, nil, nil, nil, nil)
	assert.Equal(t, "speedtest-cli", r.testers[0].Name())
}

func TestMeasureCombinesTesterErrors(t *testing.T) {
	errHTTP := errors.New("403")
	errCLI := errors.New("exit status 1")
	_, err := NewRunner(nil, nil,
		&fakeTester{name: "http-download", err: errHTTP},
		&fakeTester{name: "speedtest-cli", err: errCLI},
	).Measure(context.Background())

	require.Len(t, multierr.Errors(err), 3)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.ErrorIs(t, err, errHTTP)
	assert.ErrorIs(t, err, errCLI)
	assert.Contains(t, err.Error(), "speedtest-cli: exit status 1")
}
