// Package config loads observer settings from an optional YAML file, then
// applies OBSERVER_* environment overrides and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"
)

const DefaultPath = "observer.yaml"

const (
	DefaultListen          = "127.0.0.1:8020"
	DefaultGatewayURL      = "http://127.0.0.1:8010"
	DefaultStreamID        = "default"
	DefaultLimit           = 200
	DefaultPollInterval    = time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultMaxRequestBytes = 8 << 20
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Journal   JournalConfig   `yaml:"journal"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Listen          string `yaml:"listen" env:"OBSERVER_LISTEN"`
	MaxRequestBytes int64  `yaml:"max_request_bytes" env:"OBSERVER_MAX_REQUEST_BYTES"`
}

type GatewayConfig struct {
	URL            string `yaml:"url" env:"OBSERVER_GATEWAY_URL"`
	StreamID       string `yaml:"stream_id" env:"OBSERVER_STREAM_ID"`
	Lane           string `yaml:"lane" env:"OBSERVER_LANE"`
	Limit          int    `yaml:"limit" env:"OBSERVER_LIMIT"`
	PollInterval   string `yaml:"poll_interval" env:"OBSERVER_POLL_INTERVAL"`
	RequestTimeout string `yaml:"request_timeout" env:"OBSERVER_REQUEST_TIMEOUT"`
}

type JournalConfig struct {
	// Path enables the SQLite journal when non-empty.
	Path string `yaml:"path" env:"OBSERVER_JOURNAL_PATH"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"OBSERVER_LOG_LEVEL"`
	Format string `yaml:"format" env:"OBSERVER_LOG_FORMAT"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"OBSERVER_OTEL_ENDPOINT"`
	Disabled bool   `yaml:"disabled" env:"OBSERVER_OTEL_DISABLED"`
}

// Load reads path (a missing file is an error unless allowMissing), applies
// environment overrides and fills defaults.
func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("config path is required")
	}

	var configuration Config
	// #nosec G304 -- config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	switch {
	case err != nil && !(os.IsNotExist(err) && allowMissing):
		return Config{}, fmt.Errorf("read config: %w", err)
	case err == nil && len(strings.TrimSpace(string(content))) > 0:
		if err := yaml.Unmarshal(content, &configuration); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&configuration); err != nil {
		return Config{}, err
	}
	if err := configuration.normalize(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

// Default returns the built-in settings with environment overrides applied.
func Default() (Config, error) {
	var configuration Config
	if err := applyEnv(&configuration); err != nil {
		return Config{}, err
	}
	if err := configuration.normalize(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

func applyEnv(configuration *Config) error {
	if err := env.Parse(configuration); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (configuration *Config) normalize() error {
	configuration.Server.Listen = nonEmptyOrDefault(configuration.Server.Listen, DefaultListen)
	if configuration.Server.MaxRequestBytes <= 0 {
		configuration.Server.MaxRequestBytes = DefaultMaxRequestBytes
	}

	configuration.Gateway.URL = strings.TrimRight(nonEmptyOrDefault(configuration.Gateway.URL, DefaultGatewayURL), "/")
	configuration.Gateway.StreamID = nonEmptyOrDefault(configuration.Gateway.StreamID, DefaultStreamID)
	configuration.Gateway.Lane = strings.TrimSpace(configuration.Gateway.Lane)
	if configuration.Gateway.Limit <= 0 {
		configuration.Gateway.Limit = DefaultLimit
	}
	configuration.Gateway.PollInterval = nonEmptyOrDefault(configuration.Gateway.PollInterval, DefaultPollInterval.String())
	configuration.Gateway.RequestTimeout = nonEmptyOrDefault(configuration.Gateway.RequestTimeout, DefaultRequestTimeout.String())
	if _, err := configuration.Gateway.PollEvery(); err != nil {
		return err
	}
	if _, err := configuration.Gateway.Timeout(); err != nil {
		return err
	}

	configuration.Journal.Path = strings.TrimSpace(configuration.Journal.Path)

	configuration.Log.Level = strings.ToLower(nonEmptyOrDefault(configuration.Log.Level, DefaultLogLevel))
	configuration.Log.Format = strings.ToLower(nonEmptyOrDefault(configuration.Log.Format, DefaultLogFormat))
	switch configuration.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", configuration.Log.Level)
	}
	switch configuration.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", configuration.Log.Format)
	}

	configuration.Telemetry.Endpoint = strings.TrimSpace(configuration.Telemetry.Endpoint)
	return nil
}

// PollEvery is the parsed poll interval.
func (gateway GatewayConfig) PollEvery() (time.Duration, error) {
	return parsePositiveDuration("gateway.poll_interval", gateway.PollInterval)
}

// Timeout is the parsed per-request timeout.
func (gateway GatewayConfig) Timeout() (time.Duration, error) {
	return parsePositiveDuration("gateway.request_timeout", gateway.RequestTimeout)
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return parsed, nil
}

func nonEmptyOrDefault(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
