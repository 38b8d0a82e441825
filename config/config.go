// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for an OpenWire client.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Wire      WireConfig      `yaml:"wire"`
	Failover  FailoverConfig  `yaml:"failover"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ClientConfig holds connection identity settings.
type ClientConfig struct {
	// URI is a broker URI or a failover:(...) URI listing several brokers.
	URI            string        `yaml:"uri"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	TLSCAFile             string `yaml:"tls_ca_file"`
	TLSCertFile           string `yaml:"tls_cert_file"`
	TLSKeyFile            string `yaml:"tls_key_file"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`
}

// WireConfig holds the wire format preferences sent during negotiation.
type WireConfig struct {
	Version                   int           `yaml:"version"`
	TightEncoding             bool          `yaml:"tight_encoding"`
	MaxFrameSize              int64         `yaml:"max_frame_size"`
	MaxInactivityDuration     time.Duration `yaml:"max_inactivity_duration"`
	MaxInactivityInitialDelay time.Duration `yaml:"max_inactivity_initial_delay"`
	MaxConsecutiveErrors      int           `yaml:"max_consecutive_errors"`
	WriteTimeout              time.Duration `yaml:"write_timeout"`
}

// FailoverConfig holds reconnection settings. Options given in a
// failover:(...) URI take precedence.
type FailoverConfig struct {
	Randomize                   bool          `yaml:"randomize"`
	InitialReconnectDelay       time.Duration `yaml:"initial_reconnect_delay"`
	MaxReconnectDelay           time.Duration `yaml:"max_reconnect_delay"`
	UseExponentialBackOff       bool          `yaml:"use_exponential_backoff"`
	BackOffMultiplier           float64       `yaml:"backoff_multiplier"`
	MaxReconnectAttempts        int           `yaml:"max_reconnect_attempts"`         // -1 retries forever
	StartupMaxReconnectAttempts int           `yaml:"startup_max_reconnect_attempts"` // -1 falls back to max_reconnect_attempts
	ConnectTimeout              time.Duration `yaml:"connect_timeout"`
	SendTimeout                 time.Duration `yaml:"send_timeout"` // 0 waits until reconnected
	UpdateURIsSupported         bool          `yaml:"update_uris_supported"`

	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerResetTimeout     time.Duration `yaml:"breaker_reset_timeout"`
}

// TrackerConfig selects what is restored after a reconnect.
type TrackerConfig struct {
	RestoreSessions         bool `yaml:"restore_sessions"`
	RestoreConsumers        bool `yaml:"restore_consumers"`
	RestoreProducers        bool `yaml:"restore_producers"`
	RestoreTempDestinations bool `yaml:"restore_temp_destinations"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json

	// File enables rotated file output instead of stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Endpoint        string  `yaml:"endpoint"` // OTLP gRPC endpoint
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"` // 0.0 to 1.0
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			URI:            "failover:(tcp://localhost:61616)",
			RequestTimeout: 30 * time.Second,
		},
		Wire: WireConfig{
			Version:                   12,
			TightEncoding:             true,
			MaxFrameSize:              100 * 1024 * 1024,
			MaxInactivityDuration:     30 * time.Second,
			MaxInactivityInitialDelay: 10 * time.Second,
			MaxConsecutiveErrors:      10,
			WriteTimeout:              10 * time.Second,
		},
		Failover: FailoverConfig{
			InitialReconnectDelay:       10 * time.Millisecond,
			MaxReconnectDelay:           30 * time.Second,
			UseExponentialBackOff:       true,
			BackOffMultiplier:           2.0,
			MaxReconnectAttempts:        -1,
			StartupMaxReconnectAttempts: -1,
			ConnectTimeout:              10 * time.Second,
			SendTimeout:                 0,
			UpdateURIsSupported:         true,
			BreakerFailureThreshold:     5,
			BreakerResetTimeout:         30 * time.Second,
		},
		Tracker: TrackerConfig{
			RestoreSessions:         true,
			RestoreConsumers:        true,
			RestoreProducers:        true,
			RestoreTempDestinations: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Endpoint:        "localhost:4317",
			ServiceName:     "openwire-client",
			ServiceVersion:  "1.0.0",
			MetricsEnabled:  false,
			TracesEnabled:   false,
			TraceSampleRate: 0.1,
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Client.URI) == "" {
		return fmt.Errorf("client.uri cannot be empty")
	}
	if c.Client.RequestTimeout < 0 {
		return fmt.Errorf("client.request_timeout cannot be negative")
	}
	if (c.Client.TLSCertFile == "") != (c.Client.TLSKeyFile == "") {
		return fmt.Errorf("client.tls_cert_file and client.tls_key_file must be set together")
	}

	if c.Wire.Version < 1 || c.Wire.Version > 12 {
		return fmt.Errorf("wire.version must be between 1 and 12")
	}
	if c.Wire.MaxFrameSize < 1024 {
		return fmt.Errorf("wire.max_frame_size must be at least 1KB")
	}
	if c.Wire.MaxInactivityDuration < 0 {
		return fmt.Errorf("wire.max_inactivity_duration cannot be negative")
	}
	if c.Wire.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("wire.max_consecutive_errors must be at least 1")
	}

	if c.Failover.InitialReconnectDelay <= 0 {
		return fmt.Errorf("failover.initial_reconnect_delay must be positive")
	}
	if c.Failover.MaxReconnectDelay < c.Failover.InitialReconnectDelay {
		return fmt.Errorf("failover.max_reconnect_delay cannot be less than initial_reconnect_delay")
	}
	if c.Failover.UseExponentialBackOff && c.Failover.BackOffMultiplier < 1.0 {
		return fmt.Errorf("failover.backoff_multiplier must be at least 1.0")
	}
	if c.Failover.MaxReconnectAttempts < -1 || c.Failover.StartupMaxReconnectAttempts < -1 {
		return fmt.Errorf("failover reconnect attempts must be -1 or greater")
	}
	if c.Failover.ConnectTimeout <= 0 {
		return fmt.Errorf("failover.connect_timeout must be positive")
	}
	if c.Failover.BreakerFailureThreshold < 1 {
		return fmt.Errorf("failover.breaker_failure_threshold must be at least 1")
	}
	if c.Failover.BreakerResetTimeout <= 0 {
		return fmt.Errorf("failover.breaker_reset_timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}
	if c.Log.File != "" && c.Log.MaxSizeMB < 1 {
		return fmt.Errorf("log.max_size_mb must be at least 1 when log.file is set")
	}

	if c.Telemetry.MetricsEnabled || c.Telemetry.TracesEnabled {
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint cannot be empty when telemetry is enabled")
		}
	}
	if c.Telemetry.TraceSampleRate < 0.0 || c.Telemetry.TraceSampleRate > 1.0 {
		return fmt.Errorf("telemetry.trace_sample_rate must be between 0.0 and 1.0")
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
