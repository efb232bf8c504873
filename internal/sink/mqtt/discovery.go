package mqtt

import (
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
)

type sensor struct {
	Key  string
	Name string
	Icon string
	Unit string
}

// Sensors are announced to Home Assistant in this order.
var Sensors = []sensor{
	{Key: "status", Name: "Network Status", Icon: "mdi:web"},
	{Key: "router_latency", Name: "Router Latency", Icon: "mdi:router-wireless", Unit: "ms"},
	{Key: "router_health_score", Name: "Router Health Score", Icon: "mdi:heart-pulse"},
	{Key: "packet_loss", Name: "Router Packet Loss", Icon: "mdi:package-variant-remove", Unit: "%"},
	{Key: "jitter", Name: "Internet Jitter", Icon: "mdi:sine-wave", Unit: "ms"},
	{Key: "dns_latency", Name: "DNS Latency", Icon: "mdi:dns", Unit: "ms"},
	{Key: "http_latency", Name: "Internet Latency", Icon: "mdi:web-clock", Unit: "ms"},
	{Key: "blame", Name: "Fault Blame", Icon: "mdi:account-alert"},
	{Key: "fault_detail", Name: "Fault Detail", Icon: "mdi:information-outline"},
	{Key: "last_outage", Name: "Last Outage Reason", Icon: "mdi:alert-circle"},
	{Key: "download_speed", Name: "Download Speed", Icon: "mdi:download", Unit: "Mbps"},
	{Key: "upload_speed", Name: "Upload Speed", Icon: "mdi:upload", Unit: "Mbps"},
	{Key: "speedtest_latency", Name: "Speedtest Latency", Icon: "mdi:timer-outline", Unit: "ms"},
}

type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

type discoveryConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	StateTopic          string `json:"state_topic"`
	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
	Icon                string `json:"icon,omitempty"`
	UnitOfMeasurement   string `json:"unit_of_measurement,omitempty"`
	StateClass          string `json:"state_class,omitempty"`
	Device              device `json:"device"`
}

func (c Config) discoveryTopic(key string) string {
	return fmt.Sprintf("%s/sensor/netsentinel_%s/config", c.DiscoveryPrefix, key)
}

func (c Config) discoveryPayload(s sensor) discoveryConfig {
	cfg := discoveryConfig{
		Name:                "NetSentinel " + s.Name,
		UniqueID:            fmt.Sprintf("netsentinel_%s_%s", c.DeviceID, s.Key),
		StateTopic:          c.stateTopic(s.Key),
		AvailabilityTopic:   c.availabilityTopic(),
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		Icon:                s.Icon,
		UnitOfMeasurement:   s.Unit,
		Device: device{
			Identifiers:  []string{"netsentinel_" + c.DeviceID},
			Name:         "Network Sentinel",
			Model:        "netsentinel",
			Manufacturer: "Custom",
		},
	}
	if s.Unit != "" {
		cfg.StateClass = "measurement"
	}
	return cfg
}

// PublishDiscovery publishes a retained config topic per sensor.
func (s *Sink) PublishDiscovery() error {
	var errs []error
	for _, sn := range Sensors {
		payload, err := json.Marshal(s.cfg.discoveryPayload(sn))
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", sn.Key, err))
			continue
		}
		if err := s.publish(s.cfg.discoveryTopic(sn.Key), true, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}
