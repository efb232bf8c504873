package config

import (
	"errors"
	"net"
	"testing"
)

func TestResolveRouterKeepsConfigured(t *testing.T) {
	cfg := Config{}
	cfg.Monitoring.Targets.Router = "192.168.0.1"
	called := false
	discovered, err := cfg.ResolveRouter(func() (net.IP, error) {
		called = true
		return nil, nil
	})
	if err != nil || discovered || called {
		t.Fatalf("configured router should win: discovered=%v called=%v err=%v", discovered, called, err)
	}
}

func TestResolveRouterDiscovers(t *testing.T) {
	cfg := Config{}
	discovered, err := cfg.ResolveRouter(func() (net.IP, error) {
		return net.ParseIP("10.1.1.254"), nil
	})
	if err != nil || !discovered {
		t.Fatalf("expected discovery, got discovered=%v err=%v", discovered, err)
	}
	if cfg.Monitoring.Targets.Router != "10.1.1.254" {
		t.Fatalf("unexpected router %q", cfg.Monitoring.Targets.Router)
	}
}

func TestResolveRouterFails(t *testing.T) {
	cfg := Config{}
	_, err := cfg.ResolveRouter(func() (net.IP, error) {
		return nil, errors.New("no route table")
	})
	if !errors.Is(err, ErrNoRouter) {
		t.Fatalf("expected ErrNoRouter, got %v", err)
	}
	_, err = cfg.ResolveRouter(func() (net.IP, error) { return net.IPv4zero, nil })
	if !errors.Is(err, ErrNoRouter) {
		t.Fatalf("expected ErrNoRouter for unspecified address, got %v", err)
	}
}
