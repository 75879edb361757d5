package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging/batch"
)

const sampleYAML = `
url: http://loki:3100/loki/api/v1/push
labels:
  app: test_app
  environment: testing
auth:
  id: "42"
  secret: s3cret
timeout: 5s
flush_interval: 2s
batch_size: 500
max_buffer: 10000
overflow: drop_newest
retry_once: true
format: json
tail:
  path: /var/log/pods
  workers: 3
  idle_timeout: 1m
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvURL, EnvUserID, EnvAPIKey, EnvTimeout, EnvLogPath} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://loki:3100/loki/api/v1/push", cfg.URL)
	assert.Equal(t, `{app="test_app", environment="testing"}`, cfg.Labels.String())
	require.NotNil(t, cfg.Auth)
	assert.Equal(t, "42", cfg.Auth.ID)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "drop_newest", cfg.Overflow)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, 3, cfg.Tail.Workers)
	assert.Equal(t, time.Minute, cfg.Tail.IdleTimeout)
}

func TestLoad_JSONKeepsLabelOrder(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"url": "https://logs.example.com", "labels": {"zone": "b", "app": "a"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	labels := cfg.Labels.Labels()
	require.Len(t, labels, 2)
	assert.Equal(t, "zone", labels[0].Name)
	assert.Equal(t, "app", labels[1].Name)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "url: http://localhost:3100\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "drop_oldest", cfg.Overflow)
	assert.Equal(t, FormatPlain, cfg.Format)
	assert.Nil(t, cfg.Auth)
	assert.Equal(t, 0, cfg.Labels.Len())
	assert.Equal(t, DefaultLogPath, cfg.Tail.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yml", sampleYAML)
	t.Setenv(EnvURL, "https://override.example.com")
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvTimeout, "2.5")
	t.Setenv(EnvLogPath, "/tmp/logs")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://override.example.com", cfg.URL)
	assert.Equal(t, "42", cfg.Auth.ID)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "/tmp/logs", cfg.Tail.Path)
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvURL, "http://loki:3100")

	// no lokishipper.* file next to the package
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://loki:3100", cfg.URL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
	}{
		{name: "no url", file: "c.yml", content: "labels: {app: x}\n"},
		{name: "bad scheme", file: "c.yml", content: "url: ftp://loki\n"},
		{name: "reserved label", file: "c.yml", content: "url: http://loki\nlabels: {level: x}\n"},
		{name: "duplicate label", file: "c.yml", content: "url: http://loki\nlabels:\n  app: a\n  app: b\n"},
		{name: "nested label", file: "c.yml", content: "url: http://loki\nlabels:\n  app: {x: y}\n"},
		{name: "half auth", file: "c.yml", content: "url: http://loki\nauth: {id: a}\n"},
		{name: "negative timeout", file: "c.yml", content: "url: http://loki\ntimeout: -1s\n"},
		{name: "bad overflow", file: "c.yml", content: "url: http://loki\noverflow: spill\n"},
		{name: "bad format", file: "c.yml", content: "url: http://loki\nformat: xml\n"},
		{name: "unsupported extension", file: "c.toml", content: "url = 'http://loki'\n"},
		{name: "bad env timeout", file: "c.yml", content: "url: http://loki\n", env: map[string]string{EnvTimeout: "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_OverridesRunAfterEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvURL, "http://env:3100")
	path := writeFile(t, "config.yml", "url: http://file:3100\n")

	var seen string
	cfg, err := Load(path, func(c *Config) error {
		seen = c.URL
		c.URL = "http://override:3100"
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "http://env:3100", seen)
	assert.Equal(t, "http://override:3100", cfg.URL)
}

func TestLoad_OverrideErrorAndValidation(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yml", "url: http://file:3100\n")

	_, err := Load(path, func(*Config) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	// overrides are validated like the file
	_, err = Load(path, func(c *Config) error {
		c.Format = "xml"
		return nil
	})
	assert.Error(t, err)
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "b.yml")
	require.NoError(t, os.WriteFile(second, []byte("url: x\n"), 0644))

	path, ok := FindConfig([]string{filepath.Join(dir, "a.yml"), dir, second})
	assert.True(t, ok)
	assert.Equal(t, second, path)

	_, ok = FindConfig([]string{filepath.Join(dir, "missing.yml")})
	assert.False(t, ok)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvUserID)
	path := writeFile(t, ".env", "LOKI_USER_ID=from-dotenv\n")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-dotenv", os.Getenv(EnvUserID))
}

func TestHandlerOptions(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, "config.yml", sampleYAML))
	require.NoError(t, err)

	opts := cfg.HandlerOptions()

	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 2*time.Second, opts.FlushInterval)
	assert.Equal(t, 500, opts.BatchSize)
	assert.Equal(t, 10000, opts.MaxEntries)
	assert.Equal(t, batch.DropNewest, opts.Overflow)
	assert.True(t, opts.RetryOnce)
	assert.False(t, opts.RequeueOnFailure)
	require.NotNil(t, opts.Credentials)
	assert.Equal(t, "s3cret", opts.Credentials.Secret)
	assert.IsType(t, logging.JSONFormatter{}, opts.Formatter)

	tc := cfg.TailerConfig()
	assert.Equal(t, "/var/log/pods", tc.LogRootPath)
	assert.Equal(t, 3, tc.Workers)
	assert.Equal(t, time.Minute, tc.FileIdleTimeout)
}
