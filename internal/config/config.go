// Package config loads the shipper configuration from a YAML (or JSON) file,
// a .env file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Chichichkin/LokiLoggerHandler/internal/daemon"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging/batch"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging/loki"
)

const (
	EnvURL     = "LOKI_URL"
	EnvUserID  = "LOKI_USER_ID"
	EnvAPIKey  = "LOKI_API_KEY"
	EnvTimeout = "LOKI_TIMEOUT"
	EnvLogPath = "LOG_PATH"
)

const DefaultLogPath = "/var/log/pods"

const (
	FormatPlain = "plain"
	FormatJSON  = "json"
)

var DefaultLocations = []string{
	"./lokishipper.yml",
	"./lokishipper.yaml",
	"./lokishipper.json",
	"/etc/lokishipper/config.yml",
}

type Config struct {
	URL              string           `yaml:"url"`
	Labels           logging.LabelSet `yaml:"labels"`
	Auth             *AuthConfig      `yaml:"auth"`
	Timeout          time.Duration    `yaml:"timeout"`
	FlushInterval    time.Duration    `yaml:"flush_interval"`
	BatchSize        int              `yaml:"batch_size"`
	MaxBuffer        int              `yaml:"max_buffer"`
	Overflow         string           `yaml:"overflow"`
	RetryOnce        bool             `yaml:"retry_once"`
	RequeueOnFailure bool             `yaml:"requeue_on_failure"`
	Format           string           `yaml:"format"`
	Tail             TailConfig       `yaml:"tail"`
}

type AuthConfig struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
}

type TailConfig struct {
	Path         string        `yaml:"path"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	FromStart    bool          `yaml:"from_start"`
	Poll         bool          `yaml:"poll"`
}

// FindConfig returns the first regular file among locations.
func FindConfig(locations []string) (string, bool) {
	for _, val := range locations {
		stat, err := os.Stat(val)
		if err != nil {
			continue
		}
		if stat.Mode().IsRegular() {
			return val, true
		}
	}
	return "", false
}

// LoadFile decodes a .yml, .yaml or .json file. JSON goes through the YAML
// decoder as well so that label order is kept in both formats.
func LoadFile(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml", ".json":
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get config file info: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("failed to read config file: config file must be a regular file")
	}

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path, or the first of DefaultLocations when path is empty, then
// applies environment overrides, then each of overrides in order, and
// validates the result. No file at all is not an error as long as the
// environment or an override provides the URL.
func Load(path string, overrides ...func(*Config) error) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		path, _ = FindConfig(DefaultLocations)
	}
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if err := override(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvURL); v != "" {
		c.URL = v
	}

	id, key := os.Getenv(EnvUserID), os.Getenv(EnvAPIKey)
	if id != "" || key != "" {
		if c.Auth == nil {
			c.Auth = &AuthConfig{}
		}
		if id != "" {
			c.Auth.ID = id
		}
		if key != "" {
			c.Auth.Secret = key
		}
	}

	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}

	if v := os.Getenv(EnvLogPath); v != "" {
		c.Tail.Path = v
	}
	return nil
}

// parseTimeout accepts a Go duration or a plain number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate fills defaults and rejects values the handler cannot use.
func (c *Config) Validate() error {
	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" {
		return errors.New("loki url is not set")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid loki url: %q", c.URL)
	}

	if err := c.Labels.ValidateStatic(); err != nil {
		return fmt.Errorf("invalid labels: %w", err)
	}

	if c.Auth != nil && (c.Auth.ID == "" || c.Auth.Secret == "") {
		return errors.New("auth requires both id and secret")
	}

	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if c.Timeout == 0 {
		c.Timeout = loki.DefaultTimeout
	}

	if c.FlushInterval < 0 || c.BatchSize < 0 || c.MaxBuffer < 0 {
		return errors.New("flush_interval, batch_size and max_buffer cannot be negative")
	}

	if c.Overflow == "" {
		c.Overflow = batch.DropOldest.String()
	}
	if _, err := batch.ParseOverflowPolicy(c.Overflow); err != nil {
		return err
	}

	switch c.Format {
	case "":
		c.Format = FormatPlain
	case FormatPlain, FormatJSON:
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}

	if c.Tail.Path == "" {
		c.Tail.Path = DefaultLogPath
	}
	if c.Tail.Workers < 0 || c.Tail.QueueSize < 0 {
		return errors.New("tail workers and queue_size cannot be negative")
	}
	return nil
}

// HandlerOptions converts the config into batch.Options. Validate must have
// been called.
func (c *Config) HandlerOptions() *batch.Options {
	opts := batch.DefaultOptions()
	opts.Timeout = c.Timeout
	opts.FlushInterval = c.FlushInterval
	opts.BatchSize = c.BatchSize
	opts.MaxEntries = c.MaxBuffer
	opts.Overflow, _ = batch.ParseOverflowPolicy(c.Overflow)
	opts.RetryOnce = c.RetryOnce
	opts.RequeueOnFailure = c.RequeueOnFailure

	if c.Auth != nil {
		opts.Credentials = &loki.Credentials{ID: c.Auth.ID, Secret: c.Auth.Secret}
	}
	if c.Format == FormatJSON {
		opts.Formatter = logging.JSONFormatter{}
	}
	return opts
}

// TailerConfig converts the tail section into daemon.Config.
func (c *Config) TailerConfig() daemon.Config {
	return daemon.Config{
		LogRootPath:     c.Tail.Path,
		ScanInterval:    c.Tail.ScanInterval,
		Workers:         c.Tail.Workers,
		FileQueueSize:   c.Tail.QueueSize,
		FileIdleTimeout: c.Tail.IdleTimeout,
		FromStart:       c.Tail.FromStart,
		Poll:            c.Tail.Poll,
	}
}
