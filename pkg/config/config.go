// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads thermoremote settings from flags, environment and
// an optional thermoremote.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys shared between cobra flag bindings and Load
const (
	KeyAddress        = "address"
	KeyTransport      = "transport"
	KeyBaud           = "baud"
	KeyDialTimeout    = "dial_timeout"
	KeyReconnect      = "reconnect"
	KeyBackoffInitial = "backoff.initial"
	KeyBackoffMax     = "backoff.max"
	KeyResendInterval = "resend_interval"
	KeyLogLevel       = "log.level"
	KeyLogFile        = "log.file"
	KeyHTTPListen     = "http.listen"
	KeyMetricsEnabled = "metrics.enabled"
	KeySimListen      = "simulator.listen"
	KeySimHeartbeat   = "simulator.heartbeat"
	KeySimAmbient     = "simulator.ambient"
)

// Defaults
const (
	DefaultAddress        = "192.168.50.92:5000"
	DefaultBaud           = 115200
	DefaultDialTimeout    = 5 * time.Second
	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
	DefaultHTTPListen     = ":8080"
	DefaultSimListen      = ":5000"
	DefaultSimHeartbeat   = 1 * time.Second
	DefaultSimAmbient     = 15
)

// EnvPrefix is prepended to every environment override (THERMOREMOTE_ADDRESS)
const EnvPrefix = "THERMOREMOTE"

// Config is the validated, typed view of all settings
type Config struct {
	Address     string
	Transport   string
	Baud        int
	DialTimeout time.Duration

	Reconnect      bool
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	ResendInterval time.Duration

	LogLevel string
	LogFile  string

	HTTPListen     string
	MetricsEnabled bool

	Simulator SimulatorConfig
}

// SimulatorConfig configures the built-in device simulator
type SimulatorConfig struct {
	Listen    string
	Heartbeat time.Duration
	Ambient   int
}

// New returns a viper instance with defaults, env binding and config file
// search paths set up
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("thermoremote")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "thermoremote"))
	}
	return v
}

// SetDefaults installs every default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddress, DefaultAddress)
	v.SetDefault(KeyTransport, "")
	v.SetDefault(KeyBaud, DefaultBaud)
	v.SetDefault(KeyDialTimeout, DefaultDialTimeout)
	v.SetDefault(KeyReconnect, true)
	v.SetDefault(KeyBackoffInitial, DefaultBackoffInitial)
	v.SetDefault(KeyBackoffMax, DefaultBackoffMax)
	v.SetDefault(KeyResendInterval, time.Duration(0))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyHTTPListen, DefaultHTTPListen)
	v.SetDefault(KeyMetricsEnabled, true)
	v.SetDefault(KeySimListen, DefaultSimListen)
	v.SetDefault(KeySimHeartbeat, DefaultSimHeartbeat)
	v.SetDefault(KeySimAmbient, DefaultSimAmbient)
}

// ReadFile reads the config file if one exists. A missing file is not an
// error; a file that exists but does not parse is.
func ReadFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load extracts and validates a Config
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Address:        strings.TrimSpace(v.GetString(KeyAddress)),
		Transport:      strings.ToLower(strings.TrimSpace(v.GetString(KeyTransport))),
		Baud:           v.GetInt(KeyBaud),
		DialTimeout:    v.GetDuration(KeyDialTimeout),
		Reconnect:      v.GetBool(KeyReconnect),
		BackoffInitial: v.GetDuration(KeyBackoffInitial),
		BackoffMax:     v.GetDuration(KeyBackoffMax),
		ResendInterval: v.GetDuration(KeyResendInterval),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFile:        v.GetString(KeyLogFile),
		HTTPListen:     v.GetString(KeyHTTPListen),
		MetricsEnabled: v.GetBool(KeyMetricsEnabled),
		Simulator: SimulatorConfig{
			Listen:    v.GetString(KeySimListen),
			Heartbeat: v.GetDuration(KeySimHeartbeat),
			Ambient:   v.GetInt(KeySimAmbient),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("config: address is required")
	}
	switch c.Transport {
	case "", "tcp", "ws", "serial":
	default:
		return fmt.Errorf("config: unknown transport %q (want tcp, ws or serial)", c.Transport)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("config: baud must be positive, got %d", c.Baud)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("config: dial_timeout must be positive, got %s", c.DialTimeout)
	}
	if c.BackoffInitial <= 0 {
		return fmt.Errorf("config: backoff.initial must be positive, got %s", c.BackoffInitial)
	}
	if c.BackoffMax < c.BackoffInitial {
		return fmt.Errorf("config: backoff.max (%s) is below backoff.initial (%s)", c.BackoffMax, c.BackoffInitial)
	}
	if c.ResendInterval < 0 {
		return fmt.Errorf("config: resend_interval must not be negative, got %s", c.ResendInterval)
	}
	if c.Simulator.Heartbeat <= 0 {
		return fmt.Errorf("config: simulator.heartbeat must be positive, got %s", c.Simulator.Heartbeat)
	}
	return nil
}
