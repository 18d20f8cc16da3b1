package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/strokectl/internal/bridge"
	"github.com/danmuck/strokectl/internal/controller"
	"github.com/danmuck/strokectl/internal/motion"
	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

var ErrUnknownKind = errors.New("config: unknown kind")

// Kind names which binary a config file belongs to.
type Kind string

const (
	KindBridge     Kind = "bridge"
	KindController Kind = "controller"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindBridge, KindController:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Defined reports whether a key was present in the decoded file. It matches
// the signature of BurntSushi's MetaData.IsDefined.
type Defined func(key ...string) bool

// SessionFile holds the keys both roles share.
type SessionFile struct {
	ID                    string   `toml:"id"`
	URL                   string   `toml:"url"`
	Key                   string   `toml:"key"`
	Relay                 string   `toml:"relay"`
	AdminListen           string   `toml:"admin_listen"`
	CorsOrigins           []string `toml:"cors_origins"`
	AdminToken            string   `toml:"admin_token"`
	HeartbeatInterval     string   `toml:"heartbeat_interval"`
	MaxReconnectAttempts  int      `toml:"max_reconnect_attempts"`
	SecurityMode          string   `toml:"session_security_mode"`
	TLSCAFile             string   `toml:"session_tls_ca_file"`
	TLSCertFile           string   `toml:"session_tls_cert_file"`
	TLSKeyFile            string   `toml:"session_tls_key_file"`
	TLSServerName         string   `toml:"session_tls_server_name"`
	TLSInsecureSkipVerify bool     `toml:"session_tls_insecure_skip_verify"`
}

// BridgeFile is the bridgectl config.toml schema.
type BridgeFile struct {
	SessionFile
	Hardware        string `toml:"hardware"`
	SelectionPolicy string `toml:"selection_policy"`
	ClientName      string `toml:"client_name"`
}

// ControllerFile is the controlctl config.toml schema.
type ControllerFile struct {
	SessionFile
	Model            string  `toml:"model"`
	StrokeMin        float64 `toml:"stroke_min"`
	StrokeMax        float64 `toml:"stroke_max"`
	MaxSpeed         float64 `toml:"max_speed"`
	SampleIntervalMS int     `toml:"sample_interval_ms"`
	SurfaceTop       float64 `toml:"surface_top"`
	SurfaceHeight    float64 `toml:"surface_height"`
}

// Apply overlays the relay channel keys that are present onto cfg.
func (f SessionFile) Apply(cfg *session.Config, defined Defined) error {
	if defined("heartbeat_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(f.HeartbeatInterval))
		if err != nil {
			return fmt.Errorf("parse heartbeat_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("heartbeat_interval must be positive: %s", d)
		}
		cfg.HeartbeatInterval = d
	}
	if defined("max_reconnect_attempts") {
		if f.MaxReconnectAttempts < 0 {
			return fmt.Errorf("max_reconnect_attempts must not be negative: %d", f.MaxReconnectAttempts)
		}
		cfg.MaxReconnectAttempts = f.MaxReconnectAttempts
	}
	if defined("session_security_mode") {
		mode := session.NormalizeSecurityMode(session.SecurityMode(f.SecurityMode))
		if mode != session.SecurityModeDevelopment && mode != session.SecurityModeProduction {
			return fmt.Errorf("%w: %q", session.ErrInvalidSecurityMode, f.SecurityMode)
		}
		cfg.SecurityMode = mode
	}
	if defined("session_tls_ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(f.TLSCAFile)
	}
	if defined("session_tls_cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(f.TLSCertFile)
	}
	if defined("session_tls_key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(f.TLSKeyFile)
	}
	if defined("session_tls_server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(f.TLSServerName)
	}
	if defined("session_tls_insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = f.TLSInsecureSkipVerify
	}
	return nil
}

func (f BridgeFile) Apply(cfg *bridge.Config, defined Defined) error {
	if err := f.SessionFile.Apply(&cfg.Relay, defined); err != nil {
		return err
	}
	if defined("id") {
		cfg.InstanceID = strings.TrimSpace(f.ID)
	}
	if defined("hardware") {
		cfg.HardwareURL = strings.TrimSpace(f.Hardware)
	}
	if defined("selection_policy") {
		p, err := bridge.ParseSelectionPolicy(f.SelectionPolicy)
		if err != nil {
			return err
		}
		cfg.Core.Policy = p
	}
	if defined("client_name") {
		cfg.Core.ClientName = strings.TrimSpace(f.ClientName)
	}
	return nil
}

func (f ControllerFile) Apply(cfg *controller.Config, defined Defined) error {
	if err := f.SessionFile.Apply(&cfg.Relay, defined); err != nil {
		return err
	}
	if defined("id") {
		cfg.InstanceID = strings.TrimSpace(f.ID)
	}
	if defined("model") {
		m, err := motion.ParseModel(f.Model)
		if err != nil {
			return err
		}
		cfg.Engine.Model = m
	}
	if defined("stroke_min") {
		cfg.Engine.Range.Min = f.StrokeMin
	}
	if defined("stroke_max") {
		cfg.Engine.Range.Max = f.StrokeMax
	}
	if defined("max_speed") {
		cfg.Engine.SpeedClamp = motion.SpeedClamp(f.MaxSpeed)
	}
	if defined("sample_interval_ms") {
		cfg.Engine.SampleInterval = time.Duration(f.SampleIntervalMS) * time.Millisecond
	}
	if defined("surface_top") {
		cfg.Surface.Top = f.SurfaceTop
	}
	if defined("surface_height") {
		cfg.Surface.Height = f.SurfaceHeight
	}
	return nil
}

// Validate strictly decodes the file at path as kind: unknown keys, bad
// values and settings the binary would refuse at startup are all errors.
func Validate(path string, kind Kind) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	defined, err := definedKeys(data)
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	switch kind {
	case KindBridge:
		var f BridgeFile
		if err := decodeStrict(data, &f); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		cfg := bridge.DefaultConfig()
		if err := f.Apply(&cfg, defined); err != nil {
			return fmt.Errorf("bridge config invalid (%s): %w", path, err)
		}
		if err := ValidateBridge(cfg); err != nil {
			return fmt.Errorf("bridge config invalid (%s): %w", path, err)
		}
	case KindController:
		var f ControllerFile
		if err := decodeStrict(data, &f); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		cfg := controller.DefaultConfig()
		if err := f.Apply(&cfg, defined); err != nil {
			return fmt.Errorf("controller config invalid (%s): %w", path, err)
		}
		if err := ValidateController(cfg); err != nil {
			return fmt.Errorf("controller config invalid (%s): %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return nil
}

// ValidateBridge checks the settings that do not depend on the relay URL.
func ValidateBridge(cfg bridge.Config) error {
	if err := cfg.Core.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.HardwareURL) == "" {
		return bridge.ErrHardwareURLRequired
	}
	return cfg.Hardware.ValidateClientTransport(cfg.HardwareURL)
}

func ValidateController(cfg controller.Config) error {
	if err := cfg.Engine.Validate(); err != nil {
		return err
	}
	_, err := cfg.Surface.Normalize(cfg.Surface.Top)
	return err
}

func decodeStrict(data []byte, out any) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w\n%s", err, strict.String())
		}
		return err
	}
	return nil
}

// definedKeys reports top-level key presence the way MetaData.IsDefined
// does for the flat schemas above.
func definedKeys(data []byte) (Defined, error) {
	var keys map[string]any
	if err := toml.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	return func(key ...string) bool {
		if len(key) != 1 {
			return false
		}
		_, ok := keys[key[0]]
		return ok
	}, nil
}
