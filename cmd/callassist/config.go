package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/callassist/internal/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	envAPIURL    = "CALLASSIST_API_URL"
	envWSURL     = "CALLASSIST_WS_URL"
	envViewToken = "CALLASSIST_VIEW_TOKEN"

	defaultConfigPath = "callassist.toml"
	defaultEnvFile    = ".env"
)

// configOptions are the global flags that feed config resolution.
type configOptions struct {
	path    string
	envFile string
	apiURL  string
	wsURL   string
}

// resolveConfig layers defaults, the config file, .env, the environment and
// flags, in that order, then validates the result.
func resolveConfig(opts configOptions) (config.Config, error) {
	cfg := config.Default()

	path := strings.TrimSpace(opts.path)
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	loaded, err := loadFileConfig(path)
	switch {
	case err == nil:
		cfg = loaded
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return config.Config{}, err
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		return config.Config{}, err
	}
	applyEnv(&cfg)

	if v := strings.TrimSpace(opts.apiURL); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(opts.wsURL); v != "" {
		cfg.WSURL = v
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// loadFileConfig overlays the keys defined in path onto the defaults.
// Unknown keys are logged and ignored; `config validate` is the strict path.
func loadFileConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg := config.Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Str("path", path).Str("key", key.String()).Msg("config.unknown_key")
	}

	// The channel usually lives on the API host.
	if meta.IsDefined("api_url") && !meta.IsDefined("ws_url") {
		cfg.WSURL = cfg.APIURL
	}
	if meta.IsDefined("view", "cors_origins") {
		cfg.View.CorsOrigins = normalizeList(cfg.View.CorsOrigins)
	}
	if meta.IsDefined("view", "token") {
		cfg.View.Token = strings.TrimSpace(cfg.View.Token)
	}
	return cfg, nil
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("config.env_loaded")
	return nil
}

func applyEnv(cfg *config.Config) {
	if v := strings.TrimSpace(os.Getenv(envAPIURL)); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envWSURL)); v != "" {
		cfg.WSURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envViewToken)); v != "" {
		cfg.View.Token = v
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
