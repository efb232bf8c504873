package probe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpeedtestSimple(t *testing.T) {
	out := []byte("Ping: 14.221 ms\nDownload: 93.47 Mbit/s\nUpload: 11.02 Mbit/s\n")
	res, err := ParseSpeedtestSimple(out)
	require.NoError(t, err)
	assert.Equal(t, 93.47, res.DownloadMbps)
	require.NotNil(t, res.UploadMbps)
	assert.Equal(t, 11.02, *res.UploadMbps)
	require.NotNil(t, res.LatencyMs)
	assert.Equal(t, 14.221, *res.LatencyMs)
}

func TestParseSpeedtestSimpleRejectsGarbage(t *testing.T) {
	_, err := ParseSpeedtestSimple([]byte("Retrieving speedtest.net configuration...\nCannot retrieve speedtest configuration\n"))
	require.Error(t, err)
	assert.Equal(t, "protocol", Kind(err))
}

func TestSpeedtestCLI(t *testing.T) {
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "/usr/bin/speedtest-cli", name)
		assert.Equal(t, []string{"--simple"}, args)
		return []byte("Ping: 9 ms\nDownload: 250.5 Mbit/s\nUpload: 20 Mbit/s\n"), nil
	}
	cli := NewSpeedtestCLI("/usr/bin/speedtest-cli", time.Minute, run)
	res, err := cli.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250.5, res.DownloadMbps)
	assert.Equal(t, "speedtest-cli", res.Source)

	failing := NewSpeedtestCLI("", time.Minute, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("not installed")
	})
	_, err = failing.Measure(context.Background())
	assert.Equal(t, "transport", Kind(err))
}

func TestDownloaderMeasures(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 256<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("bytes"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(n))
		_, _ = w.Write(payload[:n])
	}))
	defer srv.Close()

	d := NewDownloader(nil, DownloaderConfig{
		URL:        srv.URL + "/__down",
		LatencyURL: srv.URL + "/__down?bytes=0",
		Bytes:      int64(len(payload)),
		Timeout:    5 * time.Second,
	})
	res, err := d.Measure(context.Background())
	require.NoError(t, err)
	assert.Greater(t, res.DownloadMbps, 0.0)
	assert.NotNil(t, res.LatencyMs)
	assert.Nil(t, res.UploadMbps)
	assert.Equal(t, "http-download", res.Source)
}

func TestDownloaderRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDownloader(nil, DownloaderConfig{URL: srv.URL, Timeout: time.Second})
	_, err := d.Measure(context.Background())
	require.Error(t, err)
	assert.Equal(t, "protocol", Kind(err))
}

func TestDownloadURL(t *testing.T) {
	d := NewDownloader(nil, DownloaderConfig{URL: "https://speed.example/__down", Bytes: 1000})
	assert.Equal(t, "https://speed.example/__down?bytes=1000", d.downloadURL())
	d = NewDownloader(nil, DownloaderConfig{URL: "https://speed.example/dl?x=1", Bytes: 5})
	assert.Equal(t, "https://speed.example/dl?x=1&bytes=5", d.downloadURL())
}
