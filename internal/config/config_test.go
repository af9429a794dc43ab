package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8081" {
		t.Errorf("port: got %q, want 8081", cfg.Port)
	}
	if cfg.AuthMode != "local" {
		t.Errorf("auth mode: got %q, want local", cfg.AuthMode)
	}
	if cfg.StorageBackend != "memory" {
		t.Errorf("storage backend: got %q, want memory", cfg.StorageBackend)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Errorf("session ttl: got %v, want 12h", cfg.SessionTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("allowed origins: got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != "redis" {
		t.Errorf("storage backend: got %q, want redis", cfg.StorageBackend)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("session ttl: got %v, want 30m", cfg.SessionTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("allowed origins: got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad env", "APP_ENV", "qa"},
		{"bad auth mode", "AUTH_MODE", "ldap"},
		{"bad storage", "STORAGE_BACKEND", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "test")
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for default JWT secret in production")
	}
}

func TestLoad_Seed(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("SEED_EMAIL", "admin@grand.test")
	t.Setenv("SEED_PASSWORD", "changeme123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SeedEmail != "admin@grand.test" || cfg.SeedPassword != "changeme123" {
		t.Errorf("seed: got %q / %q", cfg.SeedEmail, cfg.SeedPassword)
	}
	if cfg.SeedName != "Administrator" {
		t.Errorf("seed name: got %q", cfg.SeedName)
	}
}
