package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", " key ")
	t.Setenv("GEMINI_BASE_URL", "https://example.com/v1beta/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiAPIKey != "key" {
		t.Fatalf("unexpected api key: %q", cfg.GeminiAPIKey)
	}
	if cfg.GeminiBaseURL != "https://example.com/v1beta" {
		t.Fatalf("unexpected base url: %q", cfg.GeminiBaseURL)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.RetryBaseDelay != time.Second || cfg.RetryMultiplier != 2 {
		t.Fatalf("unexpected retry policy: %d %s %v", cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMultiplier)
	}
	if cfg.GeminiTransport != TransportREST {
		t.Fatalf("unexpected transport: %q", cfg.GeminiTransport)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.GeminiTemperature != 0.2 {
		t.Fatalf("unexpected temperature: %v", cfg.GeminiTemperature)
	}
	if cfg.MaxSessions != 200 {
		t.Fatalf("unexpected session cap: %d", cfg.MaxSessions)
	}
}

func TestLoadParsesOriginList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://desk.example.com, ,https://staging.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if strings.Join(cfg.CORSAllowedOrigins, "|") != "https://desk.example.com|https://staging.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"transport":       {"GEMINI_TRANSPORT", "grpc"},
		"sdk without key": {"GEMINI_TRANSPORT", "sdk"},
		"attempts":        {"RETRY_MAX_ATTEMPTS", "0"},
		"multiplier":      {"RETRY_MULTIPLIER", "0.5"},
		"upload":          {"MAX_UPLOAD_BYTES", "0"},
		"not a number":    {"RETRY_BASE_DELAY_MS", "soon"},
		"temperature":     {"GEMINI_TEMPERATURE", "3"},
		"session cap":     {"MAX_SESSIONS", "-1"},
		"ttl below run":   {"SESSION_TTL_MINUTES", "2"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestLoadAllowsDisabledSessionExpiry(t *testing.T) {
	t.Setenv("SESSION_TTL_MINUTES", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTTL != 0 {
		t.Fatalf("unexpected ttl: %s", cfg.SessionTTL)
	}
}
