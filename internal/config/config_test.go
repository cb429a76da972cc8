package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RATE_LIMIT_WINDOW", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Inference.Model != "gpt-4o-mini" {
		t.Errorf("unexpected model %q", cfg.Inference.Model)
	}
	if cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("expected fallback window, got %v", cfg.RateLimit.WindowDuration)
	}
	if cfg.Inference.APIKey != "" {
		t.Error("missing credential must not fail Load")
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("unexpected session ttl %v", cfg.SessionTTL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "  sk-test  ")
	t.Setenv("RATE_LIMIT_REQUESTS", "3")
	t.Setenv("SPEECH_ENABLED", "off")
	t.Setenv("INFERENCE_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Inference.APIKey != "sk-test" {
		t.Errorf("expected trimmed key, got %q", cfg.Inference.APIKey)
	}
	if cfg.RateLimit.RequestsPerWindow != 3 {
		t.Errorf("expected 3 requests, got %d", cfg.RateLimit.RequestsPerWindow)
	}
	if cfg.Speech.Enabled {
		t.Error("expected speech disabled")
	}
	if cfg.Inference.Timeout != 5*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Inference.Timeout)
	}
}

func TestValidateRejectsBadRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Parallel()

	c := &Config{}
	if got := c.AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Errorf("unexpected origins %v", got)
	}
	c.FrontendURL = "https://tutor.example.com/"
	if got := c.AllowedOrigins(); got[0] != "https://tutor.example.com" {
		t.Errorf("unexpected origins %v", got)
	}
}
