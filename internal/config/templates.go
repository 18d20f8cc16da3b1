package config

import (
	"fmt"
	"os"
)

func Template(kind Kind) (string, error) {
	switch kind {
	case KindBridge:
		return bridgeTemplate, nil
	case KindController:
		return controllerTemplate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func WriteTemplate(path string, kind Kind, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// DefaultPath is where configgen reads and writes a kind's config.
func DefaultPath(kind Kind) string {
	switch kind {
	case KindBridge:
		return "cmd/bridgectl/config.toml"
	case KindController:
		return "cmd/controlctl/config.toml"
	}
	return ""
}

const sessionTemplate = `# entry url handed out by the relay page; its key parameter is honored
url = "https://relay.example/?key=change-me"
# key = "change-me"
# relay = "wss://relay.example"
admin_listen = "127.0.0.1:7010"
cors_origins = ["http://localhost:3000"]
# bearer token for the routes that drive hardware; STROKECTL_ADMIN_TOKEN also works
admin_token = ""
heartbeat_interval = "10s"
max_reconnect_attempts = 10
session_security_mode = "development"
session_tls_ca_file = ""
session_tls_cert_file = ""
session_tls_key_file = ""
session_tls_server_name = ""
session_tls_insecure_skip_verify = false
`

const bridgeTemplate = `id = "bridge.local"
` + sessionTemplate + `
hardware = "ws://localhost:12345"
# linear-or-first | linear-only
selection_policy = "linear-or-first"
client_name = "WebToyClient"
`

const controllerTemplate = `id = "controller.local"
` + sessionTemplate + `
# spring | sampled
model = "spring"
stroke_min = 0.01111
stroke_max = 0.99999
max_speed = 1.0
sample_interval_ms = 50
surface_top = 0.0
surface_height = 1.0
`
