package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DiscoveryConfig tunes the device discovery loops
type DiscoveryConfig struct {
	LocalIntervalSec   int `json:"localIntervalSec,omitempty"`
	NetworkIntervalSec int `json:"networkIntervalSec,omitempty"`
	ResolveTimeoutSec  int `json:"resolveTimeoutSec,omitempty"`
}

// OutputConfig tunes the rate-limited send path
type OutputConfig struct {
	RateCapacity int `json:"rateCapacity,omitempty"`
	RateWindowMs int `json:"rateWindowMs,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	OwnerID    string          `json:"ownerId,omitempty"`
	ClientName string          `json:"clientName,omitempty"`
	PresetPath string          `json:"presetPath,omitempty"`
	Discovery  DiscoveryConfig `json:"discovery,omitempty"`
	Output     OutputConfig    `json:"output,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OwnerID:    "local",
		ClientName: "stemdeck",
		Discovery: DiscoveryConfig{
			LocalIntervalSec:   5,
			NetworkIntervalSec: 10,
			ResolveTimeoutSec:  5,
		},
		Output: OutputConfig{
			RateCapacity: 100,
			RateWindowMs: 50,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stemdeck"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LocalInterval returns the local discovery poll interval
func (c *Config) LocalInterval() time.Duration {
	return time.Duration(c.Discovery.LocalIntervalSec) * time.Second
}

// NetworkInterval returns the network discovery poll interval
func (c *Config) NetworkInterval() time.Duration {
	return time.Duration(c.Discovery.NetworkIntervalSec) * time.Second
}

// ResolveTimeout returns the network resolve timeout
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Discovery.ResolveTimeoutSec) * time.Second
}

// RateWindow returns the token bucket refill interval
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Output.RateWindowMs) * time.Millisecond
}
