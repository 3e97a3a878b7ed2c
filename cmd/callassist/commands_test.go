package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/callassist/internal/testutil/testlog"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func newSessionAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        "s-new",
			"status":    "active",
			"tenant_id": body["tenant_id"],
		})
	})
	mux.HandleFunc("POST /sessions/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id":  r.PathValue("id"),
			"summary":     "Customer booked a visit",
			"disposition": "booked",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateCommand(t *testing.T) {
	testlog.Start(t)
	clearConfigEnv(t)
	t.Chdir(t.TempDir())
	srv := newSessionAPI(t)

	out, err := runCLI(t, "--api-url", srv.URL, "create", "--tenant", "t-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if strings.TrimSpace(out) != "s-new" {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = runCLI(t, "--api-url", srv.URL, "create", "--tenant", "t-1", "--json")
	if err != nil {
		t.Fatalf("create --json: %v", err)
	}
	if !strings.Contains(out, `"tenant_id": "t-1"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestEndCommand(t *testing.T) {
	testlog.Start(t)
	clearConfigEnv(t)
	t.Chdir(t.TempDir())
	srv := newSessionAPI(t)

	out, err := runCLI(t, "--api-url", srv.URL, "end", "s-1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !strings.Contains(out, "Disposition: booked") || !strings.Contains(out, "Customer booked a visit") {
		t.Fatalf("unexpected output: %s", out)
	}

	out, err = runCLI(t, "--api-url", srv.URL, "end", "s-1", "--format", "yaml")
	if err != nil {
		t.Fatalf("end --format yaml: %v", err)
	}
	if !strings.Contains(out, "disposition: booked") || !strings.Contains(out, "status: completed") {
		t.Fatalf("unexpected yaml output: %s", out)
	}

	_, err = runCLI(t, "--api-url", srv.URL, "end", "missing")
	if err == nil || !strings.Contains(err.Error(), "session not found") {
		t.Fatalf("expected server body in error, got %v", err)
	}

	if _, err := runCLI(t, "--api-url", srv.URL, "end", "s-1", "--format", "csv"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestConfigCommands(t *testing.T) {
	testlog.Start(t)
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.toml")

	if _, err := runCLI(t, "config", "init", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := runCLI(t, "config", "init", path); err == nil {
		t.Fatalf("config init should not overwrite without --force")
	}
	if _, err := runCLI(t, "config", "init", path, "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}

	out, err := runCLI(t, "config", "validate", path)
	if err != nil || !strings.Contains(out, "ok") {
		t.Fatalf("config validate: %v %q", err, out)
	}

	bad := writeTestFile(t, "bad.toml", "apiurl = \"x\"\n")
	if _, err := runCLI(t, "config", "validate", bad); err == nil || !strings.Contains(err.Error(), "apiurl") {
		t.Fatalf("strict validate should reject unknown key, got %v", err)
	}

	if err := os.WriteFile(path, []byte("[view]\ntoken = \"secret\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err = runCLI(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret") || !strings.Contains(out, "<redacted>") {
		t.Fatalf("token not redacted: %s", out)
	}
}
