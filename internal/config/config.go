package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/Napageneral/rolodex/internal/accounts"
)

// Config represents the rolodex configuration
type Config struct {
	Store    StoreConfig        `yaml:"store"`
	Accounts []accounts.Profile `yaml:"accounts,omitempty"`
	Live     LiveConfig         `yaml:"live"`
	Log      LogConfig          `yaml:"log"`
}

// StoreConfig selects the record store database.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go, default) or "sqlite3" (cgo).
	Driver string `yaml:"driver"`
	// Path overrides the database file. Defaults to <data dir>/rolodex.db.
	Path string `yaml:"path,omitempty"`
}

// LiveConfig controls the watch command.
type LiveConfig struct {
	DebounceSeconds int            `yaml:"debounce_seconds"`
	Accounts        []accounts.Ref `yaml:"accounts,omitempty"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Driver: "sqlite"},
		Live:  LiveConfig{DebounceSeconds: 2},
		Log:   LogConfig{Level: "info"},
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Live.DebounceSeconds <= 0 {
		c.Live.DebounceSeconds = d.Live.DebounceSeconds
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("store.driver must be sqlite or sqlite3 (got %q)", c.Store.Driver)
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry builds the account profile registry.
func (c *Config) Registry() (*accounts.Registry, error) {
	return accounts.NewRegistry(c.Accounts...)
}

// DBPath returns the database path.
func (c *Config) DBPath() (string, error) {
	if c.Store.Path != "" {
		return os.ExpandEnv(c.Store.Path), nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "rolodex.db"), nil
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("ROLODEX_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "rolodex"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	if override := os.Getenv("ROLODEX_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Rolodex"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "rolodex"), nil
	}

	return filepath.Join(home, ".local", "share", "rolodex"), nil
}

// Load loads config from the config file
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return &cfg, nil
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
