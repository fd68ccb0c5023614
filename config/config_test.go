package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "staffing.db", cfg.Database.Path)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Reminders)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.Anomalies)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Overload)
	assert.Equal(t, time.Hour, cfg.Scheduler.Cleanup)
	assert.Equal(t, 168*time.Hour, cfg.Scheduler.WeeklyReport)

	// Secret has no default
	assert.ErrorContains(t, cfg.Validate(), "auth.jwt_secret")
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	// GIVEN: A file setting some values
	path := writeFile(t, "config.yaml", `
server:
  port: 9000
  allowed_origins: ["https://a.example", "https://b.example"]
  read_timeout: 5s
auth:
  jwt_secret: file-secret
log:
  level: debug
  format: json
scheduler:
  enabled: false
  overload: 10m
`)

	// WHEN: Loading it
	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	// THEN: File values win, missing ones fall back
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.Overload)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Reminders)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	// GIVEN: A file and overriding environment variables
	path := writeFile(t, "config.yaml", "server:\n  port: 9000\nauth:\n  jwt_secret: file-secret\n")
	t.Setenv("STAFFING_PORT", "7000")
	t.Setenv("STAFFING_JWT_SECRET", "env-secret")
	t.Setenv("STAFFING_ALLOWED_ORIGINS", " https://x.example, ,https://y.example ")
	t.Setenv("STAFFING_SCHEDULER_ENABLED", "false")

	// WHEN: Loading
	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	// THEN: The environment wins
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: A .env file and no YAML file
	envFile := writeFile(t, "test.env", "STAFFING_JWT_SECRET=dotenv-secret\nSTAFFING_DB_PATH=:memory:\n")
	t.Setenv("STAFFING_JWT_SECRET", "")
	t.Setenv("STAFFING_DB_PATH", "")
	os.Unsetenv("STAFFING_JWT_SECRET")
	os.Unsetenv("STAFFING_DB_PATH")

	cfg, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "dotenv-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, ":memory:", cfg.Database.Path)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("STAFFING_JWT_SECRET", "s")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), noEnvFile(t))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeFile(t, "bad.yaml", "server: [not a map"), noEnvFile(t))
	assert.ErrorContains(t, err, "failed to parse config file")

	t.Setenv("STAFFING_PORT", "eighty")
	_, err = Load("", noEnvFile(t))
	assert.ErrorContains(t, err, "STAFFING_PORT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = "s"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"timeouts", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "timeouts"},
		{"db", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"interval", func(c *Config) { c.Scheduler.Cleanup = -time.Minute }, "scheduler.cleanup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "job", "cleanup")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"job":"cleanup"`)

	buf.Reset()
	newLogger(LogConfig{Level: "debug"}, &buf).Debug("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
}
