package core

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the handful of settings read from an optional TOML file at
// startup: whether to request Vulkan validation layers, the preferred
// present mode, and the initial window size.
type Config struct {
	ValidationEnabled bool   `toml:"validation_enabled"`
	PresentMode       string `toml:"present_mode"`
	WindowWidth       uint32 `toml:"window_width"`
	WindowHeight      uint32 `toml:"window_height"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() Config {
	return Config{
		ValidationEnabled: false,
		PresentMode:       "mailbox",
		WindowWidth:       1280,
		WindowHeight:      720,
	}
}

// LoadConfig reads and parses a TOML config file at path, returning
// DefaultConfig unchanged if the file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
