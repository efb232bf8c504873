package aggregate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netsentinelhq/sentinel/pkg/types"
)

type fakeProber struct {
	mu       sync.Mutex
	results  map[string]types.ProbeResult
	panics   map[string]bool
	calls    []string
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeProber) lookup(key string) types.ProbeResult {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.panics[key] {
		panic("probe exploded: " + key)
	}
	return f.results[key]
}

func (f *fakeProber) Ping(ctx context.Context, host string, timeout time.Duration) types.ProbeResult {
	return f.lookup("ping:" + host)
}

func (f *fakeProber) Resolve(ctx context.Context, hostname, server string, timeout time.Duration) types.ProbeResult {
	return f.lookup(hostname + "@" + server)
}

func (f *fakeProber) HTTPGet(ctx context.Context, url string, timeout time.Duration) types.ProbeResult {
	return f.lookup(url)
}

func (f *fakeProber) Traceroute(ctx context.Context, target string) string {
	return ""
}
