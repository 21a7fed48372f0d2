/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func isolate(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvAPIKey, "")
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	isolate(t)
	cfg, key, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if key != "" {
		t.Fatalf("expected no key, got %q", key)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMergesFile(t *testing.T) {
	path := isolate(t)
	data := `
general:
  telemetry_opt_in: true
generator:
  model: gemini-test
  timeout_ms: 5000
storage:
  driver: FILE
  path: /tmp/saves
logging:
  level: DEBUG
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.General.TelemetryOptIn || cfg.General.Language != "ko" {
		t.Fatalf("general: %+v", cfg.General)
	}
	if cfg.Generator.Model != "gemini-test" || cfg.Generator.Timeout() != 5*time.Second {
		t.Fatalf("generator: %+v", cfg.Generator)
	}
	if cfg.Generator.RequestsPerMinute != Defaults().Generator.RequestsPerMinute {
		t.Fatalf("unset field should keep default, got %d", cfg.Generator.RequestsPerMinute)
	}
	if cfg.Storage.Driver != DriverFile || cfg.Storage.Path != "/tmp/saves" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Fatalf("logging: %+v", cfg.Logging)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte("general: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvStorageDriver, "Postgres")
	t.Setenv(EnvStorageDSN, "postgres://localhost/gonovel")
	t.Setenv(EnvTemperature, "0.25")
	t.Setenv(EnvKeepSnapshots, "not-a-number")
	t.Setenv("GNV_LOG_FORMAT", "JSON")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.DSN != "postgres://localhost/gonovel" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
	if cfg.Generator.Temperature != 0.25 {
		t.Fatalf("temperature: %v", cfg.Generator.Temperature)
	}
	if cfg.Storage.KeepSnapshots != Defaults().Storage.KeepSnapshots {
		t.Fatalf("bad number should be ignored, got %d", cfg.Storage.KeepSnapshots)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format: %q", cfg.Logging.Format)
	}
	if name, ok := EnvOverrideFor("storage.dsn"); !ok || name != EnvStorageDSN {
		t.Fatalf("EnvOverrideFor: %q %v", name, ok)
	}
	if _, ok := EnvOverrideFor("content.episodes_dir"); ok {
		t.Fatalf("unset env should not report an override")
	}
	if _, ok := EnvOverrideFor("no.such.key"); ok {
		t.Fatalf("unknown key should not report an override")
	}
}

func TestSaveRoundTripAndKeyring(t *testing.T) {
	path := isolate(t)
	cfg := Defaults()
	cfg.Content.StartEpisode = "episode2"
	if err := Save(cfg, "secret-key"); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret-key") {
		t.Fatalf("api key leaked into config file")
	}
	got, key, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Content.StartEpisode != "episode2" {
		t.Fatalf("start episode: %q", got.Content.StartEpisode)
	}
	if key != "secret-key" {
		t.Fatalf("key: %q", key)
	}

	if err := ForgetAPIKey(); err != nil {
		t.Fatalf("forget: %v", err)
	}
	t.Setenv(EnvAPIKey, "from-env")
	if _, key, _ = Load(); key != "from-env" {
		t.Fatalf("expected env fallback, got %q", key)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"unknown driver":   func(c *AppConfig) { c.Storage.Driver = "mongo" },
		"postgres no dsn":  func(c *AppConfig) { c.Storage.Driver = DriverPostgres },
		"negative timeout": func(c *AppConfig) { c.Generator.TimeoutMs = -1 },
		"hot temperature":  func(c *AppConfig) { c.Generator.Temperature = 3 },
		"negative keep":    func(c *AppConfig) { c.Storage.KeepSnapshots = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoggingOptions(t *testing.T) {
	opts := LoggingConfig{Level: "warn", Format: "json", Source: true, File: "x.log"}.Options()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "x.log" {
		t.Fatalf("options: %+v", opts)
	}
}
