package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/strokectl/internal/bridge"
	"github.com/danmuck/strokectl/internal/config"
)

// options is everything bridgectl needs before dialing.
type options struct {
	Bridge      bridge.Config
	EntryURL    string
	RelayBase   string
	Key         string
	AdminListen string
	AdminToken  string
	CorsOrigins []string
}

func defaultOptions() options {
	return options{Bridge: bridge.DefaultConfig()}
}

// loadOptions overlays the keys present in the config file onto opts.
func loadOptions(path string, opts *options) error {
	var raw config.BridgeFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load bridge config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load bridge config: unknown keys %s", joinKeys(undecoded))
	}
	if err := raw.Apply(&opts.Bridge, meta.IsDefined); err != nil {
		return fmt.Errorf("load bridge config: %w", err)
	}

	if meta.IsDefined("url") {
		opts.EntryURL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("relay") {
		opts.RelayBase = strings.TrimSpace(raw.Relay)
	}
	if meta.IsDefined("key") {
		opts.Key = strings.TrimSpace(raw.Key)
	}
	if meta.IsDefined("admin_listen") {
		opts.AdminListen = strings.TrimSpace(raw.AdminListen)
	}
	if meta.IsDefined("admin_token") {
		opts.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		opts.CorsOrigins = raw.CorsOrigins
	}
	return nil
}

func joinKeys(keys []toml.Key) string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return strings.Join(out, ", ")
}
