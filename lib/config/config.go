// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is not given.
const EnvironmentVariable = "LUATT_CONFIG"

// Config is the luatt configuration.
type Config struct {
	// RendezvousDir holds the rendezvous sockets, their aliases and the
	// control sockets.
	// Default: /tmp
	RendezvousDir string `yaml:"rendezvous_dir"`

	// Serial configures the device line of a root gateway.
	Serial SerialConfig `yaml:"serial"`

	// MQTT configures the pub/sub bridge. Only a root gateway connects.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Console configures terminal output.
	Console ConsoleConfig `yaml:"console"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// SerialConfig configures the serial line.
type SerialConfig struct {
	// Baud is the line rate.
	// Default: 9600
	Baud int `yaml:"baud"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	// Broker is "host", "host:port" or a broker URL. Empty disables the
	// bridge.
	Broker string `yaml:"broker"`

	// ClientID identifies the gateway to the broker. Empty means a random
	// id per run.
	ClientID string `yaml:"client_id"`

	// KeepAlive is the MQTT keepalive interval, as a Go duration.
	// Default: 60s
	KeepAlive string `yaml:"keepalive"`
}

// ConsoleConfig configures terminal output.
type ConsoleConfig struct {
	// Color is "auto", "always" or "never".
	// Default: auto
	Color string `yaml:"color"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: warn
	Level string `yaml:"level"`

	// File, if set, receives log output instead of stderr.
	File string `yaml:"file"`
}

var (
	colorModes = []string{"auto", "always", "never"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// Default returns the configuration used when no file is given. Loaded
// files are merged over it.
func Default() *Config {
	return &Config{
		RendezvousDir: "/tmp",
		Serial:        SerialConfig{Baud: 9600},
		MQTT:          MQTTConfig{KeepAlive: "60s"},
		Console:       ConsoleConfig{Color: "auto"},
		Log:           LogConfig{Level: "warn"},
	}
}

// Load loads the file named by LUATT_CONFIG, or returns Default when the
// variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// KeepAliveDuration parses MQTT.KeepAlive. Call Validate first.
func (c *Config) KeepAliveDuration() time.Duration {
	duration, err := time.ParseDuration(c.MQTT.KeepAlive)
	if err != nil {
		return 0
	}
	return duration
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	c.RendezvousDir = expandVars(c.RendezvousDir)
	c.Log.File = expandVars(c.Log.File)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.RendezvousDir == "" {
		errs = append(errs, fmt.Errorf("rendezvous_dir is required"))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.MQTT.KeepAlive != "" {
		if duration, err := time.ParseDuration(c.MQTT.KeepAlive); err != nil {
			errs = append(errs, fmt.Errorf("mqtt.keepalive: %w", err))
		} else if duration < time.Second {
			errs = append(errs, fmt.Errorf("mqtt.keepalive must be at least 1s, got %s", duration))
		}
	}
	if !slices.Contains(colorModes, c.Console.Color) {
		errs = append(errs, fmt.Errorf("console.color must be one of: %v", colorModes))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	return errors.Join(errs...)
}
