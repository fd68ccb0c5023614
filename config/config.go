/*
config.go - Process configuration

PURPOSE:
  Loads the server configuration from a YAML file, an optional .env file
  and STAFFING_* environment variables, then applies defaults and
  validates the result. Also builds the process-wide slog logger.

PRECEDENCE (lowest to highest):
  1. Built-in defaults (Default)
  2. YAML file (-config flag)
  3. .env file, loaded into the environment without overriding it
  4. STAFFING_* environment variables
  5. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  STAFFING_PORT               server.port
  STAFFING_ALLOWED_ORIGINS    server.allowed_origins (comma separated)
  STAFFING_DB_PATH            database.path
  STAFFING_JWT_SECRET         auth.jwt_secret
  STAFFING_LOG_LEVEL          log.level (debug|info|warn|error)
  STAFFING_LOG_FORMAT         log.format (text|json)
  STAFFING_SCHEDULER_ENABLED  scheduler.enabled

EXAMPLE:
  server:
    port: 8080
    allowed_origins: ["https://staffing.example.org"]
  database:
    path: ./data/staffing.db
  scheduler:
    overload: 10m

SEE ALSO:
  - cmd/server/main.go: Flag overrides and wiring
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STAFFING_"

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           int           `yaml:"port"`            // 8080
	AllowedOrigins []string      `yaml:"allowed_origins"` // CORS origins, "*" allows any
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // e.g., "15s"
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // e.g., "15s"
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"` // file path or ":memory:"
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // HS256 signing secret
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text", "json"
}

// SchedulerConfig configures the background detection jobs.
// A zero interval leaves a job manual-trigger only.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Reminders    time.Duration `yaml:"reminders"`     // e.g., "24h"
	Anomalies    time.Duration `yaml:"anomalies"`     // e.g., "6h"
	Overload     time.Duration `yaml:"overload"`      // e.g., "15m"
	Cleanup      time.Duration `yaml:"cleanup"`       // e.g., "1h"
	WeeklyReport time.Duration `yaml:"weekly_report"` // e.g., "168h"
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{Scheduler: SchedulerConfig{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration. An empty path skips the YAML file; envFile
// names an optional .env file ("" means ".env" in the working directory).
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// applyEnv overlays STAFFING_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := get("DB_PATH"); ok {
		cfg.Database.Path = v
	}
	if v, ok := get("JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := get("SCHEDULER_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSCHEDULER_ENABLED: %w", EnvPrefix, err)
		}
		cfg.Scheduler.Enabled = enabled
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyDefaults fills unset values. Scheduler intervals are left alone when
// negative so Validate can reject them.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "staffing.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Scheduler.Reminders == 0 {
		cfg.Scheduler.Reminders = 24 * time.Hour
	}
	if cfg.Scheduler.Anomalies == 0 {
		cfg.Scheduler.Anomalies = 6 * time.Hour
	}
	if cfg.Scheduler.Overload == 0 {
		cfg.Scheduler.Overload = 15 * time.Minute
	}
	if cfg.Scheduler.Cleanup == 0 {
		cfg.Scheduler.Cleanup = time.Hour
	}
	if cfg.Scheduler.WeeklyReport == 0 {
		cfg.Scheduler.WeeklyReport = 7 * 24 * time.Hour
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	for name, d := range c.Scheduler.Intervals() {
		if d < 0 {
			errs = append(errs, fmt.Errorf("scheduler.%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

// Intervals maps job names to their configured interval.
func (s SchedulerConfig) Intervals() map[string]time.Duration {
	return map[string]time.Duration{
		"reminders":     s.Reminders,
		"anomalies":     s.Anomalies,
		"overload":      s.Overload,
		"cleanup":       s.Cleanup,
		"weekly_report": s.WeeklyReport,
	}
}

// =============================================================================
// LOGGING
// =============================================================================

// NewLogger builds the process logger writing to stderr.
func NewLogger(cfg LogConfig) *slog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
