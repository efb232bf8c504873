// Package mqtt publishes monitor state to an MQTT broker with Home Assistant
// discovery.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/netsentinelhq/sentinel/internal/sink"
	"github.com/netsentinelhq/sentinel/pkg/types"
)

const (
	defaultPort            = 1883
	defaultTopicPrefix     = "netsentinel"
	defaultDiscoveryPrefix = "homeassistant"

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Client is the subset of paho.Client the sink uses.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

type Config struct {
	Broker          string
	Port            int
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
	ClientID        string
	// DeviceID keys the discovery unique_ids, normally the instance ID.
	DeviceID       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if c.ClientID == "" {
		c.ClientID = "NetSentinel"
	}
	if c.DeviceID == "" {
		c.DeviceID = "local"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	return c
}

// BrokerURL renders the paho broker address. A broker that already carries a
// scheme is used as is.
func (c Config) BrokerURL() string {
	if strings.Contains(c.Broker, "://") {
		return c.Broker
	}
	port := c.Port
	if port <= 0 {
		port = defaultPort
	}
	return "tcp://" + net.JoinHostPort(c.Broker, strconv.Itoa(port))
}

func (c Config) stateTopic(key string) string {
	return c.TopicPrefix + "/" + key + "/state"
}

func (c Config) availabilityTopic() string {
	return c.TopicPrefix + "/availability"
}

func (c Config) eventTopic() string {
	return c.TopicPrefix + "/event"
}

// Sink is the connected StateSink.
type Sink struct {
	client Client
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

var (
	_ sink.StateSink = (*Sink)(nil)
	_ sink.Closer    = (*Sink)(nil)
)

// Connect dials the broker, registers the offline will and publishes
// discovery on every (re)connect.
func Connect(cfg Config, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt: broker not configured")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{cfg: cfg, logger: logger}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetWill(cfg.availabilityTopic(), payloadOffline, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("mqtt connected", zap.String("broker", cfg.BrokerURL()))
			if err := s.announce(); err != nil {
				logger.Warn("mqtt discovery failed", zap.Error(err))
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		logger.Info("using mqtt username", zap.String("username", cfg.Username))
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		s.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %s", cfg.BrokerURL(), cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.BrokerURL(), err)
	}
	return s, nil
}

// New wraps an already connected client.
func New(client Client, cfg Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// announce marks the device online and publishes discovery configs.
func (s *Sink) announce() error {
	err := s.publish(s.cfg.availabilityTopic(), true, payloadOnline)
	return multierr.Append(err, s.PublishDiscovery())
}

func (s *Sink) UpdateState(key string, value any) error {
	return s.publish(s.cfg.stateTopic(key), true, sink.Format(value))
}

func (s *Sink) LogEvent(event types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.publish(s.cfg.eventTopic(), false, payload)
}

func (s *Sink) Connected() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	return !closed && s.client != nil && s.client.IsConnectionOpen()
}

// Close publishes the offline marker and disconnects.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.publish(s.cfg.availabilityTopic(), true, payloadOffline)
	s.client.Disconnect(250)
	return err
}

func (s *Sink) publish(topic string, retained bool, payload interface{}) error {
	if s.client == nil || !s.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: not connected", topic)
	}
	token := s.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
