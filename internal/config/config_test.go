package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ===== Defaults =====

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected memory cache backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.SweepInterval != 60*time.Second {
		t.Errorf("expected 60s sweep interval, got %s", cfg.Cache.SweepInterval)
	}
}

// ===== File loading =====

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "botd.yaml")
	body := `
app:
  name: squadbot
  environment: test
logging:
  level: debug
  format: json
cache:
  backend: memory
  default_ttl: 5m
teams:
  default_team_id: TEAMA
  chat_mappings:
    chat-1: TEAMA
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("expected 5m ttl, got %s", cfg.Cache.DefaultTTL)
	}
	if cfg.Teams.ChatMappings["chat-1"] != "TEAMA" {
		t.Errorf("expected chat mapping, got %v", cfg.Teams.ChatMappings)
	}
	// Fields absent from the file keep defaults.
	if cfg.Cache.SweepInterval != 60*time.Second {
		t.Errorf("expected default sweep interval, got %s", cfg.Cache.SweepInterval)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromPathBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "botd.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  default_ttl: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoadFromPathDurationForms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "botd.yaml")
	body := "cache:\n  default_ttl: 90s\nstore:\n  postgres:\n    conn_max_lifetime: 1h\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Cache.DefaultTTL != 90*time.Second {
		t.Errorf("expected 90s ttl, got %s", cfg.Cache.DefaultTTL)
	}
	if cfg.Store.Postgres.ConnMaxLifetime != time.Hour {
		t.Errorf("expected 1h lifetime, got %s", cfg.Store.Postgres.ConnMaxLifetime)
	}
	// Pool sizes absent from the file keep their defaults.
	if cfg.Store.Postgres.MaxOpenConns != 10 {
		t.Errorf("expected default pool size, got %d", cfg.Store.Postgres.MaxOpenConns)
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	cfg := LoadOrDefault()
	if cfg == nil {
		t.Fatal("LoadOrDefault returned nil")
	}
	if cfg.App.Name == "" {
		t.Error("expected app name in fallback config")
	}
}

// ===== Environment overrides =====

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "botd.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SQUADBOT_LOG_LEVEL", "warn")
	t.Setenv("DEFAULT_TEAM_ID", "TEAMZ")
	t.Setenv("TEAM_CHAT_MAPPINGS", `{"chat-9":"TEAMQ"}`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env should override file level, got %s", cfg.Logging.Level)
	}
	if cfg.Teams.DefaultTeamID != "TEAMZ" {
		t.Errorf("expected TEAMZ default, got %s", cfg.Teams.DefaultTeamID)
	}
	if cfg.Teams.MappingsJSON == "" {
		t.Error("expected mappings JSON captured from environment")
	}
}

// ===== Validation =====

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "memcached"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown cache backend")
	}

	cfg = Default()
	cfg.Store.Backend = "dynamo"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown store backend")
	}

	cfg = Default()
	cfg.Store.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for postgres without dsn")
	}

	cfg = Default()
	cfg.Cache.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for redis without addr")
	}
}
