package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxDrainBytes = 64 << 10

// httpGet issues a GET and accepts any 2xx status.
func httpGet(ctx context.Context, client *http.Client, url string, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &ProtocolError{Op: "http", Target: url, Reason: "status " + resp.Status}
	}
	return elapsed, nil
}
