package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "mysql" {
		t.Fatalf("expected mysql driver, got %q", cfg.DBDriver)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.BcryptCost != 10 {
		t.Fatalf("expected bcrypt cost 10, got %d", cfg.BcryptCost)
	}
	if !cfg.Cache.Methods["GET"] || len(cfg.Cache.Methods) != 1 {
		t.Fatalf("expected cache methods {GET}, got %v", cfg.Cache.Methods)
	}
	if cfg.Redis.Address() != "localhost:6379" {
		t.Fatalf("unexpected redis address %q", cfg.Redis.Address())
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestLoadNestedPrefixes(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("CACHE_METHODS", "get, head")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected normalized sqlite driver, got %q", cfg.DBDriver)
	}
	if got := cfg.Redis.Address(); got != "cache.internal:6380" {
		t.Fatalf("expected host:port address, got %q", got)
	}
	if cfg.RateLimit.Capacity != 1 {
		t.Fatalf("expected capacity clamped to 1, got %d", cfg.RateLimit.Capacity)
	}
	if !cfg.Cache.Methods["GET"] || !cfg.Cache.Methods["HEAD"] {
		t.Fatalf("expected GET and HEAD cached, got %v", cfg.Cache.Methods)
	}
}
