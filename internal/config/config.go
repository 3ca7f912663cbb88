// Package config provides the configuration schema, loader, and validation
// for the dispatchd server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the dispatchd server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SessionBackend selects where in-flight call sessions are kept.
type SessionBackend string

const (
	// SessionsMemory keeps sessions in process memory. Sessions do not
	// survive a restart; suitable for a single-instance deployment.
	SessionsMemory SessionBackend = "memory"

	// SessionsRedis keeps sessions in Redis so multiple dispatchd instances
	// can share them.
	SessionsRedis SessionBackend = "redis"
)

// IsValid reports whether b is a recognised session backend.
func (b SessionBackend) IsValid() bool {
	return b == SessionsMemory || b == SessionsRedis
}

// BookingBackend selects where confirmed bookings are appended.
type BookingBackend string

const (
	BookingsCSV      BookingBackend = "csv"
	BookingsPostgres BookingBackend = "postgres"
)

// IsValid reports whether b is a recognised booking backend.
func (b BookingBackend) IsValid() bool {
	return b == BookingsCSV || b == BookingsPostgres
}

// Duration is a [time.Duration] that unmarshals from YAML strings such as
// "30s" or "5m", or from bare integers interpreted as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var ns int64
		if err2 := value.Decode(&ns); err2 != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(ns)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for dispatchd.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Interpreter  InterpreterConfig  `yaml:"interpreter"`
	AddressIndex AddressIndexConfig `yaml:"address_index"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Bookings     BookingsConfig     `yaml:"bookings"`
	Events       EventsConfig       `yaml:"events"`
}

// ServerConfig holds network and logging settings for the dispatchd server.
type ServerConfig struct {
	// ListenAddr is the TCP address the voice gateway listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the TCP address the Prometheus metrics endpoint
	// listens on (e.g., ":9090"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// InterpreterConfig selects and configures the language-model provider that
// interprets caller utterances.
type InterpreterConfig struct {
	// Provider selects the interpreter implementation: "openai" or
	// "anyllm".
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API. Supports
	// ${ENV_VAR} expansion.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Leave empty to
	// use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Timeout bounds a single interpreter round trip. Default: 15s.
	Timeout Duration `yaml:"timeout"`
}

// AddressIndexConfig configures the postcode address lookup used to correct
// spoken pickup addresses.
type AddressIndexConfig struct {
	// BaseURL is the root of a postcodes.io-compatible API
	// (e.g., "https://api.postcodes.io").
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single lookup. Default: 5s.
	Timeout Duration `yaml:"timeout"`

	// MinSimilarity is the minimum normalised edit similarity required to
	// accept a candidate over the spoken address. Default: 0.6.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// SessionsConfig selects and configures the call session store.
type SessionsConfig struct {
	// Backend selects the store implementation. Default: "memory".
	Backend SessionBackend `yaml:"backend"`

	// RedisURL is the Redis connection URL, required when Backend is
	// "redis" (e.g., "redis://localhost:6379/0").
	RedisURL string `yaml:"redis_url"`

	// TTL is how long an inactive session is retained before eviction.
	// Default: 30m.
	TTL Duration `yaml:"ttl"`
}

// BookingsConfig selects and configures the confirmed-booking store.
type BookingsConfig struct {
	// Backend selects the store implementation. Default: "csv".
	Backend BookingBackend `yaml:"backend"`

	// CSVPath is the booking file path when Backend is "csv".
	// Default: "booking.csv".
	CSVPath string `yaml:"csv_path"`

	// PostgresDSN is the connection string when Backend is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EventsConfig configures the optional NATS publisher for confirmed-booking
// events. When NATSURL is empty no events are published.
type EventsConfig struct {
	// NATSURL is the NATS server URL (e.g., "nats://localhost:4222").
	NATSURL string `yaml:"nats_url"`

	// NATSToken is the authentication token, if the server requires one.
	NATSToken string `yaml:"nats_token"`

	// Subject is the subject confirmed bookings are published on.
	// Default: "dispatch.booking.confirmed".
	Subject string `yaml:"subject"`
}
