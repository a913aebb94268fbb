package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	UserID    string        `yaml:"user_id"`
	Profile   ProfileConfig `yaml:"profile"`
	Device    DeviceConfig  `yaml:"device"`
	Session   SessionConfig `yaml:"session"`
	Store     StoreConfig   `yaml:"store"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	Alert     AlertConfig   `yaml:"alert"`
	History   HistoryConfig `yaml:"history"`
	HTTP      HTTPConfig    `yaml:"http"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // "text" or "json"
}

// ProfileConfig holds user profile fields pushed to the store at startup.
type ProfileConfig struct {
	DisplayName     string `yaml:"display_name"`
	HydrationGoalML int    `yaml:"hydration_goal_ml"` // 0 = not set
}

// DeviceConfig selects the bottle to connect to.
type DeviceConfig struct {
	Address     string        `yaml:"address"` // empty = strongest advertising bottle
	Name        string        `yaml:"name"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// SessionConfig tunes the connection state machine.
type SessionConfig struct {
	SkipFirstNotification bool          `yaml:"skip_first_notification"`
	SaveTimeout           time.Duration `yaml:"save_timeout"`
}

// StoreConfig locates the local record store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig configures the optional record mirror.
type MQTTConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AlertConfig configures the low-level alert.
type AlertConfig struct {
	Threshold int    `yaml:"threshold"` // raw level that fires the alert
	Title     string `yaml:"title"`
	Body      string `yaml:"body"`
	Desktop   bool   `yaml:"desktop"` // send desktop notifications over D-Bus
}

// HistoryConfig controls the startup history fetch.
type HistoryConfig struct {
	FetchRecent int `yaml:"fetch_recent"`
}

// HTTPConfig configures the status endpoint.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sipsmart")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	storePath := filepath.Join(home, ".local", "share", "sipsmart", "sipsmart.db")

	return &Config{
		UserID: "local",
		Device: DeviceConfig{
			ScanTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			SaveTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path: storePath,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "sipsmart",
			Timeout:  10 * time.Second,
		},
		Alert: AlertConfig{
			Threshold: 20,
			Title:     "Time to drink",
			Body:      "Your bottle is running low. Take a sip and refill it.",
			Desktop:   true,
		},
		History: HistoryConfig{
			FetchRecent: 5,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8090",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in store.path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Store.Path = expandTilde(cfg.Store.Path)

	return cfg, nil
}

const defaultHeader = `# sipsmart configuration
# Written on first run. See the README for every option.
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the path written, or "" if a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o600); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id must not be empty")
	}

	if c.Profile.HydrationGoalML < 0 {
		return fmt.Errorf("profile.hydration_goal_ml must be >= 0, got %d", c.Profile.HydrationGoalML)
	}

	if c.Device.Address == "" && c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0 when device.address is empty")
	}

	if c.Session.SaveTimeout <= 0 {
		return fmt.Errorf("session.save_timeout must be > 0")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker must not be empty when mqtt is enabled")
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id must not be empty when mqtt is enabled")
		}
	}

	if c.Alert.Threshold < 0 || c.Alert.Threshold > 255 {
		return fmt.Errorf("alert.threshold must be between 0 and 255, got %d", c.Alert.Threshold)
	}

	if c.History.FetchRecent < 0 {
		return fmt.Errorf("history.fetch_recent must be >= 0, got %d", c.History.FetchRecent)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
