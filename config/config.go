// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/catvomitingrainbows/vocal-liquid/hotkey"
)

const (
	appName        = "vocal-liquid"
	configFileName = "config.json"
	modelFileName  = "ggml-base.en.bin"
)

// Transcription providers.
const (
	ProviderWhisperLocal = "whisper-local"
	ProviderWhisperAPI   = "whisper-api"
)

// Defaults.
const (
	DefaultHotkey       = "ctrl+shift+space"
	DefaultLanguage     = "en"
	DefaultAPIModel     = "whisper-1"
	DefaultMaxRecording = "4h"
	DefaultSilence      = 0.01
	DefaultNotifyPerRun = 3
	DefaultLogLevel     = "info"
)

// Config represents the application configuration.
type Config struct {
	Hotkey   string `json:"hotkey"`
	Provider string `json:"provider"`

	// Local transcription
	ModelPath  string `json:"model_path,omitempty"`
	WhisperBin string `json:"whisper_bin,omitempty"`
	Language   string `json:"language"`

	// Remote transcription
	APIKey     string `json:"api_key,omitempty"`
	APIModel   string `json:"api_model,omitempty"`
	APIBaseURL string `json:"api_base_url,omitempty"`

	MaxRecording            string  `json:"max_recording"`
	SilenceThreshold        float32 `json:"silence_threshold"` // RMS, 0 disables trimming
	NotificationsPerSession int     `json:"notifications_per_session"`
	Notifications           bool    `json:"notifications"`
	LogLevel                string  `json:"log_level,omitempty"`
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path. Fields missing from the file keep
// their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if _, err := hotkey.ParseCombo(c.Hotkey); err != nil {
		errs = append(errs, fmt.Errorf("hotkey: %w", err))
	}

	switch c.Provider {
	case ProviderWhisperLocal:
	case ProviderWhisperAPI:
		if c.APIKey == "" {
			errs = append(errs, fmt.Errorf("api_key required for %s", ProviderWhisperAPI))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider: %q", c.Provider))
	}

	if d, err := time.ParseDuration(c.MaxRecording); err != nil {
		errs = append(errs, fmt.Errorf("max_recording: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("max_recording must be positive, got %s", d))
	}

	if c.SilenceThreshold < 0 || c.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("silence_threshold must be in [0, 1), got %v", c.SilenceThreshold))
	}

	if c.NotificationsPerSession < 0 {
		errs = append(errs, fmt.Errorf("notifications_per_session must not be negative"))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// MaxRecordingDuration returns the recording ceiling, falling back to the
// default when the value does not parse.
func (c *Config) MaxRecordingDuration() time.Duration {
	if d, err := time.ParseDuration(c.MaxRecording); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultMaxRecording)
	return d
}

// SlogLevel returns the configured log level, info when unset or invalid.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Dir returns the application's configuration directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// StateDir returns the directory of the persisted key-value store.
func StateDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Hotkey:                  DefaultHotkey,
		Provider:                ProviderWhisperLocal,
		ModelPath:               defaultModelPath(),
		Language:                DefaultLanguage,
		APIModel:                DefaultAPIModel,
		MaxRecording:            DefaultMaxRecording,
		SilenceThreshold:        DefaultSilence,
		NotificationsPerSession: DefaultNotifyPerRun,
		Notifications:           true,
		LogLevel:                DefaultLogLevel,
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Hotkey == "" {
		c.Hotkey = d.Hotkey
	}
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.ModelPath == "" {
		c.ModelPath = d.ModelPath
	}
	if c.APIModel == "" {
		c.APIModel = d.APIModel
	}
	if c.MaxRecording == "" {
		c.MaxRecording = d.MaxRecording
	}
}

// defaultModelPath prefers the model shipped in the app bundle, then the
// user's config directory.
func defaultModelPath() string {
	if runtime.GOOS == "darwin" {
		if execPath, err := os.Executable(); err == nil {
			bundled := filepath.Join(filepath.Dir(execPath), "..", "Resources", modelFileName)
			if _, err := os.Stat(bundled); err == nil {
				return bundled
			}
		}
	}
	dir, err := Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "models", modelFileName)
}
