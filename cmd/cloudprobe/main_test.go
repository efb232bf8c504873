package main

import (
	"io"
	"strings"
	"testing"
	"time"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags([]string{"--target", "https://home.example.com", "--webhook", "https://ha.example.com/api/webhook/x"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.interval != time.Minute {
		t.Fatalf("expected 1m default interval, got %s", opts.interval)
	}
	if opts.target != "https://home.example.com" {
		t.Fatalf("unexpected target %q", opts.target)
	}
}

func TestParseFlagsRequiresTargetAndWebhook(t *testing.T) {
	cases := map[string][]string{
		"target":  {"--webhook", "https://ha.example.com"},
		"webhook": {"--target", "https://home.example.com"},
	}
	for name, args := range cases {
		_, err := parseFlags(args, io.Discard)
		if err == nil || !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: expected missing-flag error, got %v", name, err)
		}
	}
}

func TestParseFlagsRejectsNonPositiveInterval(t *testing.T) {
	_, err := parseFlags([]string{"--target", "a", "--webhook", "b", "--interval", "0s"}, io.Discard)
	if err == nil {
		t.Fatalf("expected interval error")
	}
}
