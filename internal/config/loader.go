package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] for fields left empty.
const (
	DefaultListenAddr         = ":8080"
	DefaultInterpreterTimeout = 15 * time.Second
	DefaultAddressTimeout     = 5 * time.Second
	DefaultMinSimilarity      = 0.6
	DefaultSessionTTL         = 30 * time.Minute
	DefaultCSVPath            = "booking.csv"
	DefaultEventSubject       = "dispatch.booking.confirmed"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Environment variable references of the form ${VAR} or $VAR in
// the file are expanded before decoding, so secrets such as API keys can
// stay out of the file itself.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := parse([]byte(os.ExpandEnv(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unlike [Load] it performs no environment expansion. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for optional fields left empty. It returns a joined error listing
// all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Interpreter
	switch cfg.Interpreter.Provider {
	case "openai", "anyllm":
	case "":
		errs = append(errs, errors.New("interpreter.provider is required"))
	default:
		errs = append(errs, fmt.Errorf("interpreter.provider %q is invalid; valid values: openai, anyllm", cfg.Interpreter.Provider))
	}
	if cfg.Interpreter.Model == "" {
		errs = append(errs, errors.New("interpreter.model is required"))
	}
	if cfg.Interpreter.Timeout <= 0 {
		cfg.Interpreter.Timeout = Duration(DefaultInterpreterTimeout)
	}

	// Address index
	if cfg.AddressIndex.BaseURL == "" {
		errs = append(errs, errors.New("address_index.base_url is required"))
	}
	if cfg.AddressIndex.Timeout <= 0 {
		cfg.AddressIndex.Timeout = Duration(DefaultAddressTimeout)
	}
	if cfg.AddressIndex.MinSimilarity == 0 {
		cfg.AddressIndex.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.AddressIndex.MinSimilarity < 0 || cfg.AddressIndex.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("address_index.min_similarity %v is out of range (0, 1]", cfg.AddressIndex.MinSimilarity))
	}

	// Sessions
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = SessionsMemory
	}
	if !cfg.Sessions.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("sessions.backend %q is invalid; valid values: memory, redis", cfg.Sessions.Backend))
	}
	if cfg.Sessions.Backend == SessionsRedis && cfg.Sessions.RedisURL == "" {
		errs = append(errs, errors.New("sessions.redis_url is required when sessions.backend is redis"))
	}
	if cfg.Sessions.TTL <= 0 {
		cfg.Sessions.TTL = Duration(DefaultSessionTTL)
	}

	// Bookings
	if cfg.Bookings.Backend == "" {
		cfg.Bookings.Backend = BookingsCSV
	}
	if !cfg.Bookings.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("bookings.backend %q is invalid; valid values: csv, postgres", cfg.Bookings.Backend))
	}
	if cfg.Bookings.Backend == BookingsCSV && cfg.Bookings.CSVPath == "" {
		cfg.Bookings.CSVPath = DefaultCSVPath
	}
	if cfg.Bookings.Backend == BookingsPostgres && cfg.Bookings.PostgresDSN == "" {
		errs = append(errs, errors.New("bookings.postgres_dsn is required when bookings.backend is postgres"))
	}

	// Events
	if cfg.Events.NATSURL != "" && cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventSubject
	}

	return errors.Join(errs...)
}
