package session

import "time"

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
	// MaxAttempts bounds consecutive reconnect attempts; 0 retries forever.
	MaxAttempts int
}

// TLSConfig configures wss:// connections.
type TLSConfig struct {
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines channel transport defaults.
type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// DeadAfter closes a connection that has delivered no frame for this
	// long. The server pings every 30s; 0 disables the check.
	DeadAfter    time.Duration
	ReadLimit    int64
	SecurityMode SecurityMode
	TLS          TLSConfig
	Backoff      BackoffConfig
}

// DefaultBackoff is the reconnect policy: 1s doubling to a 30s cap, forever.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Jitter:       false,
		MaxAttempts:  0,
	}
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		DeadAfter:    75 * time.Second,
		ReadLimit:    1 << 20,
		SecurityMode: SecurityModeDevelopment,
		Backoff:      DefaultBackoff(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.DeadAfter < 0 {
		c.DeadAfter = 0
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = def.ReadLimit
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 && c.Backoff.Multiplier == 0 {
		maxAttempts := c.Backoff.MaxAttempts
		c.Backoff = def.Backoff
		c.Backoff.MaxAttempts = maxAttempts
	}
	return c
}
