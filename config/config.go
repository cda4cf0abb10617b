// Package config loads the connection, logging and table settings of an
// Atlas container from YAML, with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/table"
)

// Environment variables that override file settings.
const (
	EnvDialect            = "ATLAS_DIALECT"
	EnvDSN                = "ATLAS_DSN"
	EnvDebug              = "ATLAS_DEBUG"
	EnvLogLevel           = "ATLAS_LOG_LEVEL"
	EnvLogFormat          = "ATLAS_LOG_FORMAT"
	EnvSlowQueryThreshold = "ATLAS_SLOW_QUERY_THRESHOLD"
)

// Config is the configuration of an Atlas container.
type Config struct {
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
	// Read and Write map connection names to DSNs of the same dialect.
	Read               map[string]string  `yaml:"read,omitempty"`
	Write              map[string]string  `yaml:"write,omitempty"`
	MaxOpenConns       int                `yaml:"max_open_conns,omitempty"`
	Debug              bool               `yaml:"debug,omitempty"`
	SlowQueryThreshold time.Duration      `yaml:"slow_query_threshold,omitempty"`
	Log                Log                `yaml:"log"`
	Cache              Cache              `yaml:"cache"`
	Tables             []table.Definition `yaml:"tables,omitempty"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Cache configures the in-process row cache.
type Cache struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl,omitempty"`
}

// Load reads the file at path, applies defaults and environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML data, applies defaults and environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Cache.Enabled && cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Minute
	}
	cfg.Dialect = normalizeDialect(cfg.Dialect)
}

func normalizeDialect(name string) string {
	switch name = strings.ToLower(name); name {
	case "sqlite3":
		return dialect.SQLite
	case "postgresql", "pgx":
		return dialect.Postgres
	default:
		return name
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDialect); ok && v != "" {
		cfg.Dialect = v
	}
	if v, ok := lookup(EnvDSN); ok && v != "" {
		cfg.DSN = v
	}
	if v, ok := lookup(EnvDebug); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDebug, err)
		}
		cfg.Debug = b
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.Log.Format = v
	}
	if v, ok := lookup(EnvSlowQueryThreshold); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvSlowQueryThreshold, err)
		}
		cfg.SlowQueryThreshold = d
	}
	return nil
}

// Validate reports every problem of the configuration.
func (c *Config) Validate() error {
	var errs []error
	switch c.Dialect {
	case "":
		errs = append(errs, errors.New("config: missing dialect"))
	case dialect.MySQL, dialect.SQLite, dialect.Postgres:
	default:
		errs = append(errs, fmt.Errorf("config: unknown dialect %q", c.Dialect))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("config: missing dsn"))
	}
	if c.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("config: negative max_open_conns %d", c.MaxOpenConns))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log format %q", c.Log.Format))
	}
	for i := range c.Tables {
		if err := c.Tables[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return l, nil
}

// Logger returns a logger writing to w in the configured format and at
// the configured level.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.Log.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
