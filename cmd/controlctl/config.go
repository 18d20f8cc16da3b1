package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/strokectl/internal/config"
	"github.com/danmuck/strokectl/internal/controller"
)

// controlctl config.toml key mapping to controller runtime settings.
type options struct {
	Controller  controller.Config
	EntryURL    string
	RelayBase   string
	Key         string
	AdminListen string
	AdminToken  string
	CorsOrigins []string
}

func defaultOptions() options {
	return options{Controller: controller.DefaultConfig()}
}

func loadOptions(path string, opts *options) error {
	var raw config.ControllerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load controller config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("load controller config: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := raw.Apply(&opts.Controller, meta.IsDefined); err != nil {
		return fmt.Errorf("load controller config: %w", err)
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
