package config

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"unset uses default", "", 5 * time.Minute},
		{"go duration", "90s", 90 * time.Second},
		{"bare seconds", "30", 30 * time.Second},
		{"garbage uses default", "soon", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INTERVAL", tt.value)
			got := getEnvDuration("TEST_INTERVAL", 5*time.Minute)
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/inbox")
	t.Setenv("ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("expected poll interval 5m, got %s", cfg.PollInterval)
	}
	if cfg.PollMaxMessages != 5 {
		t.Errorf("expected poll max 5, got %d", cfg.PollMaxMessages)
	}
	if cfg.PollErrorBackoff != time.Minute {
		t.Errorf("expected backoff 1m, got %s", cfg.PollErrorBackoff)
	}
	if cfg.TokenRefreshMargin != 60*time.Second {
		t.Errorf("expected margin 60s, got %s", cfg.TokenRefreshMargin)
	}
	if cfg.CategorizeHardCap != 4 {
		t.Errorf("expected hard cap 4, got %d", cfg.CategorizeHardCap)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Environment: "production", CategorizeHardCap: 4, PollInterval: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL and JWT_SECRET")
	}

	cfg.DatabaseURL = "postgres://localhost/inbox"
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
