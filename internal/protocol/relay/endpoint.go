package relay

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrSessionKeyRequired = errors.New("relay: session key required")
	ErrInvalidRelayURL    = errors.New("relay: invalid relay url")
)

// SessionKeyFromURL reads the "key" query parameter of an entry URL.
func SessionKeyFromURL(entry string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(entry))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRelayURL, err)
	}
	key := strings.TrimSpace(u.Query().Get("key"))
	if key == "" {
		return "", ErrSessionKeyRequired
	}
	return key, nil
}

// ConnectURL tags base with the role and session key. http(s) bases are
// rewritten to ws(s); a bare host gets the /ws path.
func ConnectURL(base string, role Role, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrSessionKeyRequired
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRelayURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidRelayURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidRelayURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	q.Set("type", string(role))
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveConnectURL picks the session key and relay base for one role. An
// explicit key or base wins over what the entry URL carries; the entry
// URL's scheme and host serve as the base when none is given.
func ResolveConnectURL(entry, base, key string, role Role) (string, error) {
	entry = strings.TrimSpace(entry)
	if strings.TrimSpace(key) == "" {
		if entry == "" {
			return "", ErrSessionKeyRequired
		}
		k, err := SessionKeyFromURL(entry)
		if err != nil {
			return "", err
		}
		key = k
	}
	if strings.TrimSpace(base) == "" {
		if entry == "" {
			return "", fmt.Errorf("%w: relay endpoint required", ErrInvalidRelayURL)
		}
		u, err := url.Parse(entry)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRelayURL, err)
		}
		base = (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
	}
	return ConnectURL(base, role, key)
}
