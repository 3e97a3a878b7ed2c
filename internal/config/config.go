package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/danmuck/callassist/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// Config is the on-disk callassist configuration. Durations are strings in
// time.ParseDuration form.
type Config struct {
	APIURL         string        `toml:"api_url"`
	WSURL          string        `toml:"ws_url"`
	RequestTimeout string        `toml:"request_timeout"`
	Channel        ChannelConfig `toml:"channel"`
	View           ViewConfig    `toml:"view"`
}

type ChannelConfig struct {
	DialTimeout  string        `toml:"dial_timeout"`
	WriteTimeout string        `toml:"write_timeout"`
	DeadAfter    string        `toml:"dead_after"`
	ReadLimit    int64         `toml:"read_limit"`
	SecurityMode string        `toml:"security_mode"`
	Backoff      BackoffConfig `toml:"backoff"`
	TLS          TLSConfig     `toml:"tls"`
}

type BackoffConfig struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
	MaxAttempts  int     `toml:"max_attempts"`
}

type TLSConfig struct {
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type ViewConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// Token guards mutating view routes when set.
	Token string `toml:"token"`
}

func Default() Config {
	def := session.DefaultConfig()
	return Config{
		APIURL:         "http://localhost:8000",
		WSURL:          "ws://localhost:8000",
		RequestTimeout: "15s",
		Channel: ChannelConfig{
			DialTimeout:  def.DialTimeout.String(),
			WriteTimeout: def.WriteTimeout.String(),
			DeadAfter:    def.DeadAfter.String(),
			ReadLimit:    def.ReadLimit,
			SecurityMode: string(def.SecurityMode),
			Backoff: BackoffConfig{
				InitialDelay: def.Backoff.InitialDelay.String(),
				Multiplier:   def.Backoff.Multiplier,
				MaxDelay:     def.Backoff.MaxDelay.String(),
				Jitter:       def.Backoff.Jitter,
				MaxAttempts:  def.Backoff.MaxAttempts,
			},
		},
		View: ViewConfig{
			Addr:        "127.0.0.1:8090",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load reads path over Default and validates the result. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, 0, len(strict.Errors))
			for i := range strict.Errors {
				keys = append(keys, strings.Join(strict.Errors[i].Key(), "."))
			}
			return Config{}, fmt.Errorf("config parse failed (%s): unknown keys: %s", path, strings.Join(keys, ", "))
		}
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func Validate(cfg Config) error {
	if err := validateURL("api_url", cfg.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("ws_url", cfg.WSURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if _, err := parseDuration("request_timeout", cfg.RequestTimeout); err != nil {
		return err
	}
	sess, err := cfg.Session()
	if err != nil {
		return err
	}
	switch sess.SecurityMode {
	case session.SecurityModeDevelopment, session.SecurityModeProduction:
	default:
		return fmt.Errorf("channel.security_mode: %w: %q", session.ErrInvalidSecurityMode, cfg.Channel.SecurityMode)
	}
	if sess.Backoff.Multiplier < 1 {
		return fmt.Errorf("channel.backoff.multiplier must be >= 1")
	}
	if sess.Backoff.MaxAttempts < 0 {
		return fmt.Errorf("channel.backoff.max_attempts must be >= 0")
	}
	if strings.TrimSpace(cfg.View.Addr) == "" {
		return fmt.Errorf("view config missing addr")
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func validateURL(key, raw string, schemes ...string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("config missing %s", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s missing host", key)
			}
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s", key, strings.Join(schemes, ", "))
}
