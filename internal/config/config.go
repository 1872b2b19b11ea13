// Package config loads the platform configuration from YAML with
// environment overrides. Missing files fall back to defaults so tests and
// local tools can run without a config tree.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bot platform core.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	Store   StoreConfig   `yaml:"store"`
	Teams   TeamsConfig   `yaml:"teams"`
}

// AppConfig identifies the running process.
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string        `yaml:"backend"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// UnmarshalYAML decodes durations from strings like "10m". Keys absent from
// the document keep their current values, so defaults survive partial files.
func (c *CacheConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("cache config: expected a mapping")
	}
	for i := 0; i < len(node.Content)-1; i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "backend":
			if err := val.Decode(&c.Backend); err != nil {
				return err
			}
		case "default_ttl":
			if err := decodeDuration(val, &c.DefaultTTL, "cache default_ttl"); err != nil {
				return err
			}
		case "sweep_interval":
			if err := decodeDuration(val, &c.SweepInterval, "cache sweep_interval"); err != nil {
				return err
			}
		case "redis":
			if err := val.Decode(&c.Redis); err != nil {
				return err
			}
		}
	}
	return nil
}

// RedisConfig holds connection settings for the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StoreConfig selects and tunes the document store backend.
type StoreConfig struct {
	// Backend is "memory", "supabase" or "postgres".
	Backend  string         `yaml:"backend"`
	Postgres PostgresConfig `yaml:"postgres"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

// PostgresConfig holds settings for the postgres document store.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// UnmarshalYAML decodes conn_max_lifetime from strings like "30m" while
// keeping defaults for absent keys.
func (c *PostgresConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("postgres config: expected a mapping")
	}
	for i := 0; i < len(node.Content)-1; i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "dsn":
			if err := val.Decode(&c.DSN); err != nil {
				return err
			}
		case "max_open_conns":
			if err := val.Decode(&c.MaxOpenConns); err != nil {
				return err
			}
		case "max_idle_conns":
			if err := val.Decode(&c.MaxIdleConns); err != nil {
				return err
			}
		case "conn_max_lifetime":
			if err := decodeDuration(val, &c.ConnMaxLifetime, "postgres conn_max_lifetime"); err != nil {
				return err
			}
		}
	}
	return nil
}

// SupabaseConfig holds settings for the Supabase REST document store.
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	// RequestsPerSecond caps outbound REST calls. 0 means no limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// TeamsConfig seeds the team mapping service.
type TeamsConfig struct {
	DefaultTeamID string `yaml:"default_team_id"`
	// ChatMappings maps conversation ids to team ids.
	ChatMappings map[string]string `yaml:"chat_mappings"`
	// MappingsJSON is a JSON object of conversation id to team id pairs,
	// normally injected through the TEAM_CHAT_MAPPINGS environment variable.
	MappingsJSON string `yaml:"-"`
}

// envOverrides collects the environment variables that may override file
// values. Empty variables leave the file value in place.
type envOverrides struct {
	LogLevel        string  `env:"SQUADBOT_LOG_LEVEL"`
	LogFormat       string  `env:"SQUADBOT_LOG_FORMAT"`
	CacheBackend    string  `env:"SQUADBOT_CACHE_BACKEND"`
	RedisAddr       string  `env:"SQUADBOT_REDIS_ADDR"`
	RedisPassword   string  `env:"SQUADBOT_REDIS_PASSWORD"`
	StoreBackend    string  `env:"SQUADBOT_STORE_BACKEND"`
	PostgresDSN     string  `env:"DATABASE_URL"`
	SupabaseURL     string  `env:"SUPABASE_URL"`
	SupabaseKey     string  `env:"SUPABASE_SERVICE_KEY"`
	SupabaseRPS     float64 `env:"SUPABASE_REQUESTS_PER_SECOND"`
	DefaultTeamID   string  `env:"DEFAULT_TEAM_ID"`
	ChatMappingJSON string  `env:"TEAM_CHAT_MAPPINGS"`
}

// Load loads configuration from config/botd.yaml.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "botd.yaml"))
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns defaults (with environment
// overrides applied) if the file is missing or unreadable.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		cfg = Default()
		_ = applyEnv(cfg)
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "squadbot",
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Cache: CacheConfig{
			Backend:       "memory",
			DefaultTTL:    10 * time.Minute,
			SweepInterval: 60 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
			},
			Supabase: SupabaseConfig{
				RequestsPerSecond: 10,
			},
		},
		Teams: TeamsConfig{
			ChatMappings: map[string]string{},
		},
	}
}

// Validate reports configuration errors that should block startup.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache backend %q: must be memory or redis", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache backend redis: addr is required")
	}

	switch c.Store.Backend {
	case "memory", "supabase", "postgres":
	default:
		return fmt.Errorf("store backend %q: must be memory, supabase or postgres", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("store backend postgres: dsn is required")
	}
	if c.Store.Backend == "supabase" && c.Store.Supabase.URL == "" {
		return fmt.Errorf("store backend supabase: url is required")
	}

	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache sweep_interval must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := envdecode.Decode(&ov); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return fmt.Errorf("failed to decode environment: %w", err)
	}

	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}
	if ov.LogFormat != "" {
		cfg.Logging.Format = ov.LogFormat
	}
	if ov.CacheBackend != "" {
		cfg.Cache.Backend = ov.CacheBackend
	}
	if ov.RedisAddr != "" {
		cfg.Cache.Redis.Addr = ov.RedisAddr
	}
	if ov.RedisPassword != "" {
		cfg.Cache.Redis.Password = ov.RedisPassword
	}
	if ov.StoreBackend != "" {
		cfg.Store.Backend = ov.StoreBackend
	}
	if ov.PostgresDSN != "" {
		cfg.Store.Postgres.DSN = ov.PostgresDSN
	}
	if ov.SupabaseURL != "" {
		cfg.Store.Supabase.URL = ov.SupabaseURL
	}
	if ov.SupabaseKey != "" {
		cfg.Store.Supabase.ServiceKey = ov.SupabaseKey
	}
	if ov.SupabaseRPS > 0 {
		cfg.Store.Supabase.RequestsPerSecond = ov.SupabaseRPS
	}
	if ov.DefaultTeamID != "" {
		cfg.Teams.DefaultTeamID = ov.DefaultTeamID
	}
	if ov.ChatMappingJSON != "" {
		cfg.Teams.MappingsJSON = ov.ChatMappingJSON
	}
	return nil
}

// decodeDuration accepts "10m"-style strings and plain nanosecond integers.
func decodeDuration(node *yaml.Node, dst *time.Duration, field string) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = d
	case int:
		*dst = time.Duration(v)
	case int64:
		*dst = time.Duration(v)
	case float64:
		*dst = time.Duration(v)
	default:
		return fmt.Errorf("%s: cannot parse %v as a duration", field, raw)
	}
	return nil
}
