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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	applog "gonovel/internal/log"
)

// AppConfig is the user-editable configuration persisted as YAML in the
// user config directory. Environment variables override it at runtime and
// are never written back. The generator API key is kept in the OS keyring.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	General       GeneralConfig   `yaml:"general"`
	Generator     GeneratorConfig `yaml:"generator"`
	Storage       StorageConfig   `yaml:"storage"`
	Content       ContentConfig   `yaml:"content"`
	Logging       LoggingConfig   `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Language       string `yaml:"language"`
}

type GeneratorConfig struct {
	Model             string  `yaml:"model"`
	TimeoutMs         int     `yaml:"timeout_ms"`
	Temperature       float32 `yaml:"temperature"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	// the API key is not stored on disk
}

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path is the save directory (file) or database file (sqlite).
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
	// KeepSnapshots bounds the per-slot history of the SQL stores.
	KeepSnapshots int `yaml:"keep_snapshots"`
}

type ContentConfig struct {
	EpisodesDir  string `yaml:"episodes_dir"`
	MissionsFile string `yaml:"missions_file"`
	StartEpisode string `yaml:"start_episode"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Language: "ko"},
		Generator:     GeneratorConfig{Model: "gemini-1.5-flash", TimeoutMs: 30000, Temperature: 0.9, RequestsPerMinute: 10},
		Storage:       StorageConfig{Driver: DriverSQLite, KeepSnapshots: 20},
		Content:       ContentConfig{EpisodesDir: "content/episodes", MissionsFile: "content/missions.yaml", StartEpisode: "episode1"},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "GNV_CONFIG"
	EnvTelemetryOptIn = "GNV_TELEMETRY_OPT_IN"
	EnvLanguage       = "GNV_LANGUAGE"
	EnvModel          = "GNV_GENERATOR_MODEL"
	EnvTimeoutMs      = "GNV_GENERATOR_TIMEOUT_MS"
	EnvTemperature    = "GNV_GENERATOR_TEMPERATURE"
	EnvRPM            = "GNV_GENERATOR_RPM"
	EnvStorageDriver  = "GNV_STORAGE_DRIVER"
	EnvStoragePath    = "GNV_STORAGE_PATH"
	EnvStorageDSN     = "GNV_STORAGE_DSN"
	EnvKeepSnapshots  = "GNV_STORAGE_KEEP"
	EnvEpisodesDir    = "GNV_EPISODES_DIR"
	EnvMissionsFile   = "GNV_MISSIONS_FILE"
	EnvStartEpisode   = "GNV_START_EPISODE"
	// EnvAPIKey is read when the keyring holds no key.
	EnvAPIKey = "GEMINI_API_KEY"
)

// overrides maps dotted config keys to their env vars. The logging keys
// share the logger's own variables.
var overrides = map[string]string{
	"general.telemetry_opt_in":      EnvTelemetryOptIn,
	"general.language":              EnvLanguage,
	"generator.model":               EnvModel,
	"generator.timeout_ms":          EnvTimeoutMs,
	"generator.temperature":         EnvTemperature,
	"generator.requests_per_minute": EnvRPM,
	"storage.driver":                EnvStorageDriver,
	"storage.path":                  EnvStoragePath,
	"storage.dsn":                   EnvStorageDSN,
	"storage.keep_snapshots":        EnvKeepSnapshots,
	"content.episodes_dir":          EnvEpisodesDir,
	"content.missions_file":         EnvMissionsFile,
	"content.start_episode":         EnvStartEpisode,
	"logging.level":                 applog.EnvLevel,
	"logging.format":                applog.EnvFormat,
	"logging.source":                applog.EnvSource,
	"logging.file":                  applog.EnvFile,
}

// Keyring coordinates of the generator API key.
const (
	keyringService = "gonovel"
	keyringAPIKey  = "generator_api_key"
)

// SecretStore abstracts the OS keyring so tests can swap it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore with github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }

func (osKeyring) Delete(service, key string) error {
	if err := keyring.Delete(service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

var secrets SecretStore = osKeyring{}

// ConfigPath returns the per-user config file path, or $GNV_CONFIG when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "gonovel")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "gonovel")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "gonovel")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "gonovel")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config (if present), applies defaults and env
// overrides, and returns the generator API key separately.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file is not an
// error; a malformed one is.
func LoadFrom(path string) (AppConfig, string, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	return cfg, apiKey(), nil
}

func apiKey() string {
	if k, err := secrets.Get(keyringService, keyringAPIKey); err == nil && k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv(EnvAPIKey))
}

// Save writes the user config YAML and stores a non-empty API key in the keyring.
func Save(cfg AppConfig, key string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if key != "" {
		return secrets.Set(keyringService, keyringAPIKey, key)
	}
	return nil
}

// SetAPIKey stores the generator key in the OS keyring.
func SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty API key")
	}
	return secrets.Set(keyringService, keyringAPIKey, key)
}

// ForgetAPIKey removes the stored key.
func ForgetAPIKey() error { return secrets.Delete(keyringService, keyringAPIKey) }

// mergeInto copies file values over defaults. Strings and numbers only
// apply when set; booleans always apply.
func mergeInto(dst, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setString(&dst.General.Language, src.General.Language)

	setString(&dst.Generator.Model, src.Generator.Model)
	setInt(&dst.Generator.TimeoutMs, src.Generator.TimeoutMs)
	if src.Generator.Temperature != 0 {
		dst.Generator.Temperature = src.Generator.Temperature
	}
	setInt(&dst.Generator.RequestsPerMinute, src.Generator.RequestsPerMinute)

	setString(&dst.Storage.Driver, strings.ToLower(src.Storage.Driver))
	setString(&dst.Storage.Path, src.Storage.Path)
	setString(&dst.Storage.DSN, src.Storage.DSN)
	setInt(&dst.Storage.KeepSnapshots, src.Storage.KeepSnapshots)

	setString(&dst.Content.EpisodesDir, src.Content.EpisodesDir)
	setString(&dst.Content.MissionsFile, src.Content.MissionsFile)
	setString(&dst.Content.StartEpisode, src.Content.StartEpisode)

	setString(&dst.Logging.Level, strings.ToLower(src.Logging.Level))
	setString(&dst.Logging.Format, strings.ToLower(src.Logging.Format))
	dst.Logging.Source = src.Logging.Source
	setString(&dst.Logging.File, src.Logging.File)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	env := func(key string) (string, bool) {
		v := strings.TrimSpace(os.Getenv(overrides[key]))
		return v, v != ""
	}
	if v, ok := env("general.telemetry_opt_in"); ok {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v, ok := env("general.language"); ok {
		cfg.General.Language = v
	}
	if v, ok := env("generator.model"); ok {
		cfg.Generator.Model = v
	}
	if v, ok := env("generator.timeout_ms"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generator.TimeoutMs = n
		}
	}
	if v, ok := env("generator.temperature"); ok {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.Generator.Temperature = float32(f)
		}
	}
	if v, ok := env("generator.requests_per_minute"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generator.RequestsPerMinute = n
		}
	}
	if v, ok := env("storage.driver"); ok {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := env("storage.path"); ok {
		cfg.Storage.Path = v
	}
	if v, ok := env("storage.dsn"); ok {
		cfg.Storage.DSN = v
	}
	if v, ok := env("storage.keep_snapshots"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.KeepSnapshots = n
		}
	}
	if v, ok := env("content.episodes_dir"); ok {
		cfg.Content.EpisodesDir = v
	}
	if v, ok := env("content.missions_file"); ok {
		cfg.Content.MissionsFile = v
	}
	if v, ok := env("content.start_episode"); ok {
		cfg.Content.StartEpisode = v
	}
	if v, ok := env("logging.level"); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := env("logging.format"); ok {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := env("logging.source"); ok {
		cfg.Logging.Source = parseBool(v)
	}
	if v, ok := env("logging.file"); ok {
		cfg.Logging.File = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Keys lists the dotted keys that can be overridden from the environment.
func Keys() []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := overrides[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Validate reports settings that cannot work.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of file, sqlite, postgres", c.Storage.Driver))
	}
	if c.Generator.TimeoutMs < 0 {
		errs = append(errs, errors.New("generator.timeout_ms must not be negative"))
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generator.temperature %.2f is outside [0,2]", c.Generator.Temperature))
	}
	if c.Storage.KeepSnapshots < 0 {
		errs = append(errs, errors.New("storage.keep_snapshots must not be negative"))
	}
	return errors.Join(errs...)
}

// Timeout returns the generator timeout; zero disables it.
func (g GeneratorConfig) Timeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// Options converts the logging section for the logger.
func (l LoggingConfig) Options() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
