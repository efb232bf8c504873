package csvlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestOpenWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.csv")
	_, err := Open(path)
	require.NoError(t, err)
	_, err = Open(path)
	require.NoError(t, err)

	rows := readAll(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, header, rows[0])
}

func TestLogEventAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	l, err := Open(path)
	require.NoError(t, err)

	ts := time.Date(2026, 5, 4, 3, 2, 1, 0, time.Local)
	require.NoError(t, l.LogEvent(types.Event{
		Type:      types.EventDegraded,
		Timestamp: ts,
		Target:    "DNS",
		Details:   "1/4 DNS failed: amazon.com, microsoft.com",
		Severity:  types.SeverityWarning,
	}))
	require.NoError(t, l.LogEvent(types.Event{Type: types.EventOutage, Timestamp: ts, Target: "ISP", Severity: types.SeverityCritical}))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2026-05-04 03:02:01", "DEGRADED", "DNS", "1/4 DNS failed: amazon.com, microsoft.com", "WARNING"}, rows[1])
	assert.Equal(t, "OUTAGE", rows[2][1])

	assert.NoError(t, l.UpdateState("status", "HEALTHY"))
	assert.False(t, l.Connected())
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
