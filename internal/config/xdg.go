// Package config provides XDG path helpers and the TOML configuration file.
package config

import (
	"os"
	"path/filepath"
)

const appName = "textstudy"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appName, "config.toml")
}

// DefaultDBPath returns the default path for the run history database.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), appName, appName+".db")
}

// DefaultLogDir is where the rotating diagnostic log goes when enabled
// without an explicit path.
func DefaultLogDir() string {
	return filepath.Join(XDGDataHome(), appName, "logs")
}

// ResolveLogPath places a bare file name inside DefaultLogDir. Paths with a
// directory component are returned unchanged.
func ResolveLogPath(path string) string {
	if path == "" || filepath.Base(path) != path {
		return path
	}
	return filepath.Join(DefaultLogDir(), path)
}
