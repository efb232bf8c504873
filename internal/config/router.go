package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackpal/gateway"
)

// GatewayDiscoverer finds the default IPv4 gateway.
type GatewayDiscoverer func() (net.IP, error)

// ErrNoRouter is returned when no router is configured and none can be
// discovered.
var ErrNoRouter = errors.New("monitoring.targets.router is not set and no default gateway was found")

// ResolveRouter fills Monitoring.Targets.Router from the default gateway when
// unset. It reports whether discovery was used.
func (c *Config) ResolveRouter(discover GatewayDiscoverer) (bool, error) {
	if strings.TrimSpace(c.Monitoring.Targets.Router) != "" {
		return false, nil
	}
	if discover == nil {
		discover = gateway.DiscoverGateway
	}
	ip, err := discover()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNoRouter, err)
	}
	if ip == nil || ip.IsUnspecified() {
		return false, ErrNoRouter
	}
	c.Monitoring.Targets.Router = ip.String()
	return true, nil
}
