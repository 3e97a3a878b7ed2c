package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	if attempt > 1 {
		if cfg.Multiplier < 1.0 {
			cfg.Multiplier = 1.0
		}
		delay = delay * math.Pow(cfg.Multiplier, float64(attempt-1))
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	// MaxDelay bounds the jittered value too.
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether attempt N (1-based) is allowed.
func (cfg BackoffConfig) ShouldRetry(attempt int) bool {
	if cfg.MaxAttempts <= 0 {
		return true
	}
	return attempt <= cfg.MaxAttempts
}
