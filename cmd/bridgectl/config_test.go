package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/strokectl/internal/bridge"
	"github.com/danmuck/strokectl/internal/protocol/hardware"
	"github.com/danmuck/strokectl/internal/protocol/relay"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/danmuck/strokectl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOptionsDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
id = "bridge.local"
url = "https://relay.example/?key=abc"
admin_listen = "127.0.0.1:7010"
cors_origins = ["http://localhost:3000"]
heartbeat_interval = "5s"
selection_policy = "linear-only"
session_security_mode = "production"
`)
	opts := defaultOptions()
	if err := loadOptions(path, &opts); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if opts.Bridge.InstanceID != "bridge.local" {
		t.Fatalf("unexpected id: %q", opts.Bridge.InstanceID)
	}
	if opts.EntryURL != "https://relay.example/?key=abc" || opts.AdminListen != "127.0.0.1:7010" {
		t.Fatalf("unexpected endpoints: %+v", opts)
	}
	if len(opts.CorsOrigins) != 1 {
		t.Fatalf("unexpected cors origins: %v", opts.CorsOrigins)
	}
	if opts.Bridge.Relay.HeartbeatInterval != 5*time.Second {
		t.Fatalf("unexpected heartbeat: %v", opts.Bridge.Relay.HeartbeatInterval)
	}
	if opts.Bridge.Relay.SecurityMode != session.SecurityModeProduction {
		t.Fatalf("unexpected security mode: %q", opts.Bridge.Relay.SecurityMode)
	}
	if opts.Bridge.Core.Policy != bridge.PolicyLinearOnly {
		t.Fatalf("unexpected policy: %q", opts.Bridge.Core.Policy)
	}
	if opts.Bridge.HardwareURL != hardware.DefaultEndpoint {
		t.Fatalf("hardware should keep its default, got=%q", opts.Bridge.HardwareURL)
	}
	if opts.Bridge.Hardware.SecurityMode != session.SecurityModeDevelopment {
		t.Fatalf("hardware channel should stay in development mode")
	}
}

func TestLoadOptionsRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	opts := defaultOptions()
	err := loadOptions(writeConfig(t, "stroke_min = 0.1\n"), &opts)
	if err == nil || !strings.Contains(err.Error(), "stroke_min") {
		t.Fatalf("expected unknown key error, got=%v", err)
	}
	err = loadOptions(writeConfig(t, "selection_policy = \"any\"\n"), &opts)
	if !errors.Is(err, bridge.ErrInvalidSelectionPolicy) {
		t.Fatalf("expected ErrInvalidSelectionPolicy, got=%v", err)
	}
}

func TestParseOptionsFlagsWinOverFile(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "url = \"https://relay.example/?key=abc\"\nhardware = \"ws://10.0.0.2:12345\"\n")
	opts, err := parseOptions([]string{
		"-config", path,
		"-key", "override",
		"-relay", "ws://127.0.0.1:8080",
		"-policy", "linear-only",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Bridge.RelayURL != "ws://127.0.0.1:8080/ws?key=override&type=client" {
		t.Fatalf("unexpected relay url: %q", opts.Bridge.RelayURL)
	}
	if opts.Bridge.HardwareURL != "ws://10.0.0.2:12345" {
		t.Fatalf("unexpected hardware url: %q", opts.Bridge.HardwareURL)
	}
	if opts.Bridge.Core.Policy != bridge.PolicyLinearOnly {
		t.Fatalf("unexpected policy: %q", opts.Bridge.Core.Policy)
	}
	if opts.Bridge.InstanceID == "" {
		t.Fatalf("expected generated instance id")
	}
}

func TestParseOptionsRequiresSessionKey(t *testing.T) {
	testlog.Start(t)
	if _, err := parseOptions([]string{"-url", "https://relay.example/"}); !errors.Is(err, relay.ErrSessionKeyRequired) {
		t.Fatalf("expected ErrSessionKeyRequired, got=%v", err)
	}
	if _, err := parseOptions(nil); !errors.Is(err, relay.ErrSessionKeyRequired) {
		t.Fatalf("expected ErrSessionKeyRequired without flags, got=%v", err)
	}
	if _, err := parseOptions([]string{"-url", "https://relay.example/?key=k", "-policy", "first"}); !errors.Is(err, bridge.ErrInvalidSelectionPolicy) {
		t.Fatalf("expected ErrInvalidSelectionPolicy, got=%v", err)
	}
}
