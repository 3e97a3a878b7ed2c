package session

import (
	"errors"
	"math/rand"
	"net/url"
	"testing"
	"time"

	"github.com/danmuck/callassist/internal/testutil/testlog"
)

func TestNextBackoffDelayDefaultPolicy(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultBackoff()
	// 1s doubling, capped at 30s.
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := NextBackoffDelay(cfg, i+1, nil); got != w {
			t.Fatalf("attempt%d got=%v want=%v", i+1, got, w)
		}
	}
	if got := NextBackoffDelay(cfg, 5000, nil); got != 30*time.Second {
		t.Fatalf("huge attempt must clamp, got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestNextBackoffDelayJitterNeverExceedsMax(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultBackoff()
	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	for attempt := 1; attempt <= 200; attempt++ {
		if got := NextBackoffDelay(cfg, attempt, rng); got > cfg.MaxDelay {
			t.Fatalf("attempt%d got=%v above max %v", attempt, got, cfg.MaxDelay)
		}
	}
}

func TestBackoffShouldRetry(t *testing.T) {
	testlog.Start(t)
	unbounded := DefaultBackoff()
	if !unbounded.ShouldRetry(1_000_000) {
		t.Fatalf("default policy must retry forever")
	}
	bounded := DefaultBackoff()
	bounded.MaxAttempts = 2
	if !bounded.ShouldRetry(1) || !bounded.ShouldRetry(2) || bounded.ShouldRetry(3) {
		t.Fatalf("unexpected bounded policy behavior")
	}
}

func TestSequenceFilterAdmitsStrictlyIncreasing(t *testing.T) {
	testlog.Start(t)
	var f SequenceFilter
	var admitted []int64
	for _, seq := range []int64{1, 2, 2, 1, 3, 7, 5, 8} {
		if f.Admit(seq) {
			admitted = append(admitted, seq)
		}
	}
	want := []int64{1, 2, 3, 7, 8}
	if len(admitted) != len(want) {
		t.Fatalf("admitted=%v want=%v", admitted, want)
	}
	for i := range want {
		if admitted[i] != want[i] {
			t.Fatalf("admitted=%v want=%v", admitted, want)
		}
	}
	if f.Last() != 8 {
		t.Fatalf("last=%d", f.Last())
	}
}

func TestClientSequenceStartsAtOne(t *testing.T) {
	testlog.Start(t)
	var s ClientSequence
	if s.Last() != 0 {
		t.Fatalf("expected zero before first event")
	}
	if s.Next() != 1 || s.Next() != 2 || s.Last() != 2 {
		t.Fatalf("unexpected sequence")
	}
}

func TestEventOutboxLifecycle(t *testing.T) {
	testlog.Start(t)
	o := NewEventOutbox()
	now := time.Unix(1700000000, 0)
	o.Upsert(PendingEvent{EventID: "evt.2", Type: "client.transcript_segment", ClientSeq: 2, QueuedAt: now})
	o.Upsert(PendingEvent{EventID: "evt.1", Type: "client.transcript_segment", ClientSeq: 1, QueuedAt: now})
	o.Upsert(PendingEvent{EventID: "  "})

	item, ok := o.MarkAttempt("evt.1", now.Add(time.Second), " write failed ")
	if !ok {
		t.Fatalf("missing pending item")
	}
	if item.Attempts != 1 || item.LastError != "write failed" {
		t.Fatalf("unexpected item: %+v", item)
	}
	list := o.List()
	if len(list) != 2 || list[0].EventID != "evt.1" || list[1].EventID != "evt.2" {
		t.Fatalf("unexpected list order: %+v", list)
	}
	if !o.Ack("evt.1") {
		t.Fatalf("expected ack to clear pending event")
	}
	if o.Ack("evt.1") {
		t.Fatalf("second ack must report not pending")
	}
	if o.Len() != 1 {
		t.Fatalf("unexpected len=%d", o.Len())
	}
}

func TestValidateClientTransport(t *testing.T) {
	testlog.Start(t)
	ws, _ := url.Parse("ws://localhost:8000/ws/session/s-1")
	wss, _ := url.Parse("wss://assist.example.com/ws/session/s-1")
	httpURL, _ := url.Parse("http://localhost:8000/ws/session/s-1")

	cfg := DefaultConfig()
	if err := cfg.ValidateClientTransport(ws); err != nil {
		t.Fatalf("development ws must be valid: %v", err)
	}
	if err := cfg.ValidateClientTransport(httpURL); !errors.Is(err, ErrInvalidScheme) {
		t.Fatalf("expected ErrInvalidScheme, got %v", err)
	}

	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateClientTransport(ws); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
	if err := cfg.ValidateClientTransport(wss); err != nil {
		t.Fatalf("production wss must be valid: %v", err)
	}
	cfg.TLS.InsecureSkipVerify = true
	if err := cfg.ValidateClientTransport(wss); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.SecurityMode = "staging"
	if err := cfg.ValidateClientTransport(wss); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
}

func TestValidateClientTransportMutualRequiresCertKey(t *testing.T) {
	testlog.Start(t)
	wss, _ := url.Parse("wss://assist.example.com/ws/session/s-1")
	cfg := DefaultConfig()
	cfg.TLS.Mutual = true
	if err := cfg.ValidateClientTransport(wss); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}
	cfg.TLS.CertFile = "/tmp/client.pem"
	if err := cfg.ValidateClientTransport(wss); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}
	cfg.TLS.KeyFile = "/tmp/client.key"
	if err := cfg.ValidateClientTransport(wss); err != nil {
		t.Fatalf("expected valid transport config, got %v", err)
	}
}

func TestWithDefaultsKeepsMaxAttempts(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Backoff: BackoffConfig{MaxAttempts: 3}}.WithDefaults()
	if cfg.Backoff.InitialDelay != time.Second || cfg.Backoff.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.Backoff)
	}
	if cfg.Backoff.MaxAttempts != 3 {
		t.Fatalf("max attempts lost: %d", cfg.Backoff.MaxAttempts)
	}
	if cfg.SecurityMode != SecurityModeDevelopment || cfg.ReadLimit <= 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
