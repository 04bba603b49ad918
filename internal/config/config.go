// Package config loads runtime settings from defaults, an optional YAML
// file and ABTEST_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/maintai/abtest/internal/store"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: ABTEST_STORAGE__DRIVER=redis.
const EnvPrefix = "ABTEST_"

type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Catalog CatalogConfig `koanf:"catalog"`
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
}

type StorageConfig struct {
	Driver        string `koanf:"driver"` // sqlite | badger | redis | memory
	Path          string `koanf:"path"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	KeyPrefix     string `koanf:"key_prefix"`
}

type CatalogConfig struct {
	// Path to a YAML catalog. Empty uses the built-in one.
	Path string `koanf:"path"`
}

type ServerConfig struct {
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	Mode      string `koanf:"mode"` // debug | release
	Token     string `koanf:"token"`
	TokenFile string `koanf:"token_file"`
	// MaxVisitors caps the per-visitor managers kept in memory.
	MaxVisitors int `koanf:"max_visitors"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text | json
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"storage.driver":         store.DriverSQLite,
		"storage.path":           "./abtest.db",
		"storage.redis_addr":     "localhost:6379",
		"storage.redis_password": "",
		"storage.redis_db":       0,
		"storage.key_prefix":     "",
		"catalog.path":           "",
		"server.host":            "0.0.0.0",
		"server.port":            8080,
		"server.mode":            "release",
		"server.token":           "",
		"server.token_file":      "",
		"server.max_visitors":    10000,
		"log.level":              "info",
		"log.format":             "text",
	}
}

// Load reads configPath (optional) and the environment, then validates.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case store.DriverSQLite, store.DriverBadger:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case store.DriverRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("storage.redis_addr is required for driver redis")
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}
	if c.Server.MaxVisitors <= 0 {
		return fmt.Errorf("invalid server.max_visitors %d (must be > 0)", c.Server.MaxVisitors)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}
	return nil
}

// StoreOptions translates the storage section for store.Open.
func (c *Config) StoreOptions(logger *slog.Logger) store.Options {
	return store.Options{
		Driver:        c.Storage.Driver,
		Path:          c.Storage.Path,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		KeyPrefix:     c.Storage.KeyPrefix,
		Logger:        logger,
	}
}

// TokenFilePath is where the admin token is kept. Unless configured it sits
// next to the database.
func (c *Config) TokenFilePath() string {
	if c.Server.TokenFile != "" {
		return c.Server.TokenFile
	}
	dir := "."
	if c.Storage.Path != "" && c.Storage.Driver != store.DriverRedis && c.Storage.Driver != store.DriverMemory {
		dir = filepath.Dir(c.Storage.Path)
	}
	return filepath.Join(dir, ".abtest-token")
}

// NewLogger builds the process logger described by the log section.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", s, err)
	}
	return level, nil
}
