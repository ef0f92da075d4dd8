// Package config handles configuration loading: built-in defaults, an
// optional YAML file with environment variable expansion, and environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	cachegate "github.com/eugener/cachegate/internal"
)

// Config is the top-level proxy configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Origin    OriginConfig    `yaml:"origin"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address for net/http.
func (s ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// OriginConfig describes the single backend the proxy forwards to.
type OriginConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Timeout  time.Duration `yaml:"timeout"`   // whole origin round trip, 0 = none
	DNSCache bool          `yaml:"dns_cache"` // cache origin DNS lookups
}

// CacheConfig holds response cache policy.
type CacheConfig struct {
	// AllowAuthorized is "1" to leave Authorization out of cache keys and
	// "0" to partition the cache per credential.
	AllowAuthorized string        `yaml:"allow_authorized"`
	TTL             time.Duration `yaml:"ttl"`
	BypassIfAuth    bool          `yaml:"bypass_if_auth"`
	Coalesce        bool          `yaml:"coalesce"` // collapse concurrent misses per key

	// Mode is AllowAuthorized resolved once by Load.
	Mode cachegate.CredentialMode `yaml:"-"`
}

// LogConfig controls the default slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	Insecure   bool    `yaml:"insecure"`    // plaintext gRPC
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Origin: OriginConfig{
			Host:     "localhost",
			Port:     4502,
			Timeout:  60 * time.Second,
			DNSCache: true,
		},
		Cache: CacheConfig{
			AllowAuthorized: "1",
			TTL:             10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{SampleRate: 1.0, Insecure: true},
		},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load builds the configuration. When path is non-empty the YAML file is
// read over the defaults; environment variables are applied last.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = expandEnv(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	cfg.Cache.Mode = cachegate.ParseAllowAuthorized(cfg.Cache.AllowAuthorized)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the recognized environment variables onto cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	intVar := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}

	intVar("PORT", &cfg.Server.Port)
	if v, ok := lookup("AEM_HOST"); ok && v != "" {
		cfg.Origin.Host = v
	}
	intVar("AEM_PORT", &cfg.Origin.Port)
	if v, ok := lookup("ALLOW_AUTHORIZED"); ok {
		cfg.Cache.AllowAuthorized = v
	}
	if v, ok := lookup("CACHE_TTL_MS"); ok && v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CACHE_TTL_MS: %w", err))
		} else {
			cfg.Cache.TTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := lookup("BYPASS_CACHE_IF_AUTH"); ok {
		cfg.Cache.BypassIfAuth = v == "1"
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		cfg.Log.Format = v
	}

	return errors.Join(errs...)
}

// Validate reports configuration values the proxy cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Origin.Host == "" {
		errs = append(errs, errors.New("origin host is empty"))
	}
	if c.Origin.Port < 1 || c.Origin.Port > 65535 {
		errs = append(errs, fmt.Errorf("origin port %d out of range", c.Origin.Port))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl %v must be positive", c.Cache.TTL))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format %q: want text or json", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel parses Level into a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return lvl, nil
}
