package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName        = "sav-uploader"
	configFileName = "config.toml"
)

// DefaultConfigDir returns the platform-specific config directory. Linux
// honours XDG_CONFIG_HOME; macOS uses ~/Library/Application Support.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultConfigPath is used when neither SAV_CONFIG nor --config is set.
// A missing file there is not an error.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
