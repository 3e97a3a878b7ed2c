package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/callassist/internal/testutil/testlog"
)

func writeTestFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// clearEnv unsets key for the duration of the test.
func clearEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	_ = os.Unsetenv(key)
}

func clearConfigEnv(t *testing.T) {
	clearEnv(t, envAPIURL)
	clearEnv(t, envWSURL)
	clearEnv(t, envViewToken)
}

func TestLoadFileConfigOverlaysDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeTestFile(t, "callassist.toml", `
api_url = "https://assist.example.com"
unknown_key = "ignored"

[channel.backoff]
max_attempts = 3
multiplier = 2

[view]
cors_origins = [" https://ui.example.com ", ""]
token = "  secret  "
`)
	cfg, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "https://assist.example.com" {
		t.Fatalf("unexpected api url: %q", cfg.APIURL)
	}
	if cfg.WSURL != cfg.APIURL {
		t.Fatalf("expected ws url to follow api url, got %q", cfg.WSURL)
	}
	if cfg.Channel.Backoff.MaxAttempts != 3 || cfg.Channel.Backoff.InitialDelay != "1s" {
		t.Fatalf("unexpected backoff: %+v", cfg.Channel.Backoff)
	}
	if cfg.Channel.DeadAfter != "1m15s" {
		t.Fatalf("default dead_after lost: %q", cfg.Channel.DeadAfter)
	}
	if len(cfg.View.CorsOrigins) != 1 || cfg.View.CorsOrigins[0] != "https://ui.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.View.CorsOrigins)
	}
	if cfg.View.Token != "secret" {
		t.Fatalf("unexpected token: %q", cfg.View.Token)
	}
}

func TestLoadFileConfigKeepsExplicitWSURL(t *testing.T) {
	testlog.Start(t)
	path := writeTestFile(t, "callassist.toml", `
api_url = "https://assist.example.com"
ws_url = "wss://events.example.com"
`)
	cfg, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WSURL != "wss://events.example.com" {
		t.Fatalf("unexpected ws url: %q", cfg.WSURL)
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	testlog.Start(t)
	clearConfigEnv(t)
	path := writeTestFile(t, "callassist.toml", `
api_url = "http://file.example.com"
request_timeout = "3s"
`)
	envFile := writeTestFile(t, ".env", envWSURL+"=ws://dotenv.example.com\n"+envViewToken+"=from-dotenv\n")
	t.Setenv(envAPIURL, "http://env.example.com")

	cfg, err := resolveConfig(configOptions{path: path, envFile: envFile})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.APIURL != "http://env.example.com" {
		t.Fatalf("environment should beat the file, got %q", cfg.APIURL)
	}
	if cfg.WSURL != "ws://dotenv.example.com" || cfg.View.Token != "from-dotenv" {
		t.Fatalf(".env values not applied: %q %q", cfg.WSURL, cfg.View.Token)
	}
	if cfg.Timeout() != 3*time.Second {
		t.Fatalf("file timeout lost: %v", cfg.Timeout())
	}

	cfg, err = resolveConfig(configOptions{path: path, apiURL: "http://flag.example.com", wsURL: "ws://flag.example.com"})
	if err != nil {
		t.Fatalf("resolve with flags: %v", err)
	}
	if cfg.APIURL != "http://flag.example.com" || cfg.WSURL != "ws://flag.example.com" {
		t.Fatalf("flags should win: %q %q", cfg.APIURL, cfg.WSURL)
	}
}

func TestResolveConfigMissingFiles(t *testing.T) {
	testlog.Start(t)
	clearConfigEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := resolveConfig(configOptions{envFile: defaultEnvFile})
	if err != nil {
		t.Fatalf("defaults without files should resolve: %v", err)
	}
	if cfg.APIURL != "http://localhost:8000" {
		t.Fatalf("unexpected default api url: %q", cfg.APIURL)
	}

	_, err = resolveConfig(configOptions{path: filepath.Join(t.TempDir(), "missing.toml")})
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("explicit missing config should fail, got %v", err)
	}
}

func TestResolveConfigValidates(t *testing.T) {
	testlog.Start(t)
	clearConfigEnv(t)
	path := writeTestFile(t, "callassist.toml", "[channel]\ndial_timeout = \"never\"\n")
	if _, err := resolveConfig(configOptions{path: path}); err == nil || !strings.Contains(err.Error(), "dial_timeout") {
		t.Fatalf("expected dial_timeout error, got %v", err)
	}
}
