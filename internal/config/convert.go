package config

import (
	"strings"
	"time"

	"github.com/danmuck/callassist/internal/protocol/session"
)

// Session converts the channel section into a session.Config.
func (c Config) Session() (session.Config, error) {
	ch := c.Channel
	out := session.Config{
		ReadLimit:    ch.ReadLimit,
		SecurityMode: session.NormalizeSecurityMode(session.SecurityMode(ch.SecurityMode)),
		TLS: session.TLSConfig{
			Mutual:             ch.TLS.Mutual,
			CertFile:           strings.TrimSpace(ch.TLS.CertFile),
			KeyFile:            strings.TrimSpace(ch.TLS.KeyFile),
			CAFile:             strings.TrimSpace(ch.TLS.CAFile),
			ServerName:         strings.TrimSpace(ch.TLS.ServerName),
			InsecureSkipVerify: ch.TLS.InsecureSkipVerify,
		},
		Backoff: session.BackoffConfig{
			Multiplier:  ch.Backoff.Multiplier,
			Jitter:      ch.Backoff.Jitter,
			MaxAttempts: ch.Backoff.MaxAttempts,
		},
	}
	var err error
	if out.DialTimeout, err = parseDuration("channel.dial_timeout", ch.DialTimeout); err != nil {
		return session.Config{}, err
	}
	if out.WriteTimeout, err = parseDuration("channel.write_timeout", ch.WriteTimeout); err != nil {
		return session.Config{}, err
	}
	if out.DeadAfter, err = parseDuration("channel.dead_after", ch.DeadAfter); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.InitialDelay, err = parseDuration("channel.backoff.initial_delay", ch.Backoff.InitialDelay); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.MaxDelay, err = parseDuration("channel.backoff.max_delay", ch.Backoff.MaxDelay); err != nil {
		return session.Config{}, err
	}
	return out.WithDefaults(), nil
}

// Timeout is the parsed request_timeout, 0 when unset.
func (c Config) Timeout() time.Duration {
	d, err := parseDuration("request_timeout", c.RequestTimeout)
	if err != nil {
		return 0
	}
	return d
}
