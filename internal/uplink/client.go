// Package uplink posts monitor events and probe status to a Home Assistant
// webhook.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "netsentinel/1.0"
)

// Config holds the static configuration for a webhook client.
type Config struct {
	WebhookURL string
	Source     string
	InstanceID string
}

// Dependencies allow test overrides for HTTP client, clock and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *zap.Logger
	Timeout    time.Duration
}

// Client delivers JSON payloads to the webhook.
type Client struct {
	httpClient *http.Client
	url        string
	source     string
	instanceID string
	now        func() time.Time
	logger     *zap.Logger
	timeout    time.Duration

	mu         sync.Mutex
	lastStatus string
}

var _ sink.StateSink = (*Client)(nil)

// NewClient builds a webhook client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	source := cfg.Source
	if source == "" {
		source = "netsentinel"
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: httpClient,
		url:        cfg.WebhookURL,
		source:     source,
		instanceID: cfg.InstanceID,
		now:        now,
		logger:     logger,
		timeout:    timeout,
	}, nil
}

// StatusPayload is the reachability report the cloud probe sends.
type StatusPayload struct {
	Source  string   `json:"source"`
	Status  string   `json:"status"`
	Latency *float64 `json:"latency"`
}

// EventPayload carries a fault event.
type EventPayload struct {
	Source     string      `json:"source"`
	InstanceID string      `json:"instance_id,omitempty"`
	SentAt     time.Time   `json:"sent_at"`
	Event      types.Event `json:"event"`
}

// SendStatus posts a status report.
func (c *Client) SendStatus(ctx context.Context, status string, latencyMs *float64) error {
	return c.Post(ctx, StatusPayload{Source: c.source, Status: status, Latency: latencyMs})
}

// Post encodes payload as JSON and posts it. Any 2xx is success.
func (c *Client) Post(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed: status %s", resp.Status)
	}
	return nil
}

// LogEvent forwards a fault event.
func (c *Client) LogEvent(event types.Event) error {
	return c.Post(context.Background(), EventPayload{
		Source:     c.source,
		InstanceID: c.instanceID,
		SentAt:     c.now().UTC(),
		Event:      event,
	})
}

// UpdateState forwards status transitions only. Other keys are left to the
// MQTT sink.
func (c *Client) UpdateState(key string, value any) error {
	if key != "status" {
		return nil
	}
	status := sink.Format(value)
	c.mu.Lock()
	if status == c.lastStatus {
		c.mu.Unlock()
		return nil
	}
	previous := c.lastStatus
	c.lastStatus = status
	c.mu.Unlock()

	if err := c.SendStatus(context.Background(), status, nil); err != nil {
		c.mu.Lock()
		c.lastStatus = previous
		c.mu.Unlock()
		return err
	}
	c.logger.Debug("webhook status sent", zap.String("status", status))
	return nil
}

// Connected is false: the webhook is a side channel.
func (c *Client) Connected() bool {
	return false
}
