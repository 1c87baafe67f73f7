// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "luatt.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()

	if cfg.RendezvousDir != "/tmp" {
		t.Errorf("rendezvous_dir: got %s, want /tmp", cfg.RendezvousDir)
	}
	if cfg.Serial.Baud != 9600 {
		t.Errorf("serial.baud: got %d, want 9600", cfg.Serial.Baud)
	}
	if cfg.KeepAliveDuration() != time.Minute {
		t.Errorf("mqtt.keepalive: got %v, want 1m", cfg.KeepAliveDuration())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadWithoutVariableUsesDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Serial.Baud != Default().Serial.Baud {
		t.Errorf("serial.baud: got %d, want the default", cfg.Serial.Baud)
	}
}

func TestLoadFromVariable(t *testing.T) {
	path := writeConfig(t, `
serial:
  baud: 115200
mqtt:
  broker: broker.local:1884
  client_id: bench
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("serial.baud: got %d, want 115200", cfg.Serial.Baud)
	}
	if cfg.MQTT.Broker != "broker.local:1884" || cfg.MQTT.ClientID != "bench" {
		t.Errorf("mqtt: got %+v", cfg.MQTT)
	}
	// Unset fields keep their defaults.
	if cfg.RendezvousDir != "/tmp" || cfg.Console.Color != "auto" {
		t.Errorf("defaults lost: rendezvous_dir=%s color=%s", cfg.RendezvousDir, cfg.Console.Color)
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want a not-exist error", err)
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "serial: [unclosed\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("LUATT_TEST_RUNTIME", "/run/user/1000")
	t.Setenv("LUATT_TEST_UNSET", "")
	path := writeConfig(t, `
rendezvous_dir: ${LUATT_TEST_RUNTIME}/luatt
log:
  file: ${LUATT_TEST_UNSET:-/var/log}/luatt.log
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.RendezvousDir != "/run/user/1000/luatt" {
		t.Errorf("rendezvous_dir: got %s, want /run/user/1000/luatt", cfg.RendezvousDir)
	}
	if cfg.Log.File != "/var/log/luatt.log" {
		t.Errorf("log.file: got %s, want /var/log/luatt.log", cfg.Log.File)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.RendezvousDir = ""
	cfg.Serial.Baud = 0
	cfg.MQTT.KeepAlive = "soon"
	cfg.Console.Color = "rainbow"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, field := range []string{"rendezvous_dir", "serial.baud", "mqtt.keepalive", "console.color", "log.level"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error does not mention %s: %v", field, err)
		}
	}
}

func TestValidateKeepAliveMinimum(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.MQTT.KeepAlive = "500ms"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "at least 1s") {
		t.Fatalf("got %v, want a minimum keepalive error", err)
	}
}
