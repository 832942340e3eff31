package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load("does/not/exist.yaml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Target.ServiceURL != "http://localhost:8080" {
		t.Errorf("Target.ServiceURL = %q, want default", cfg.Target.ServiceURL)
	}
	if cfg.Target.RequestTimeout != 30*time.Second {
		t.Errorf("Target.RequestTimeout = %v, want 30s", cfg.Target.RequestTimeout)
	}
	if cfg.Presets.File != "data/presets.json" {
		t.Errorf("Presets.File = %q, want default", cfg.Presets.File)
	}
}

func TestLoadEnvOverridesServiceURLDerivesBaseURL(t *testing.T) {
	os.Setenv("SERVICE_URL", "http://example.test:9000")
	defer os.Unsetenv("SERVICE_URL")

	cfg, err := Load("does/not/exist.yaml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Target.ServiceURL != "http://example.test:9000" {
		t.Errorf("Target.ServiceURL = %q, want override", cfg.Target.ServiceURL)
	}
	if cfg.Target.BaseURL != "http://example.test:9000/api/primes" {
		t.Errorf("Target.BaseURL = %q, want derived from SERVICE_URL", cfg.Target.BaseURL)
	}
}

func TestLoadEnvOverridesExplicitBaseURLWins(t *testing.T) {
	os.Setenv("SERVICE_URL", "http://example.test:9000")
	os.Setenv("BASE_URL", "http://explicit.test/v2")
	defer os.Unsetenv("SERVICE_URL")
	defer os.Unsetenv("BASE_URL")

	cfg, err := Load("does/not/exist.yaml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Target.BaseURL != "http://explicit.test/v2" {
		t.Errorf("Target.BaseURL = %q, want explicit BASE_URL to win", cfg.Target.BaseURL)
	}
}

func TestLoadEnvOverridesMaxRetriesAndPort(t *testing.T) {
	os.Setenv("MAX_RETRIES", "5")
	os.Setenv("API_SERVER_PORT", "9090")
	defer os.Unsetenv("MAX_RETRIES")
	defer os.Unsetenv("API_SERVER_PORT")

	cfg, err := Load("does/not/exist.yaml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Target.MaxRetries != 5 {
		t.Errorf("Target.MaxRetries = %d, want 5", cfg.Target.MaxRetries)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadDatabaseDSNDisabledByDefault(t *testing.T) {
	cfg, err := Load("does/not/exist.yaml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.DSN != "" {
		t.Errorf("Database.DSN = %q, want empty when DATABASE_URL unset", cfg.Database.DSN)
	}
}
