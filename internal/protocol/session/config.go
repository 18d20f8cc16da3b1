package session

import (
	"math/rand"
	"time"
)

const (
	DefaultHeartbeatInterval    = 10 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines one relay or hardware channel's reliability settings.
// ReadTimeout of zero disables read deadlines.
type Config struct {
	ConnectTimeout       time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	HeartbeatInterval    time.Duration
	Reconnect            bool
	MaxReconnectAttempts int
	Backoff              BackoffConfig
	SecurityMode         SecurityMode
	TLS                  TLSConfig
}

// DefaultConfig returns the relay channel defaults: 10s heartbeat and up to
// ten reconnects at 1s doubling to a 30s ceiling.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       5 * time.Second,
		ReadTimeout:          0,
		WriteTimeout:         5 * time.Second,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		Reconnect:            true,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       false,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued timing fields from DefaultConfig.
// Reconnect and Jitter are left as given.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}

// ReconnectDelay reports the wait before reconnect attempt n (1-based), or
// false when attempt n must not be scheduled.
func (c Config) ReconnectDelay(n int, rng *rand.Rand) (time.Duration, bool) {
	if !c.Reconnect || n < 1 {
		return 0, false
	}
	if c.MaxReconnectAttempts > 0 && n > c.MaxReconnectAttempts {
		return 0, false
	}
	return NextBackoffDelay(c.Backoff, n, rng), true
}
