// Package config provides configuration management for the imgship CLI.
package config

import (
	"os"
	"path/filepath"
)

// FileName is the config file looked up in Dir.
const FileName = "config.yaml"

// Dir returns the imgship config directory.
// Uses XDG_CONFIG_HOME/imgship, defaulting to ~/.config/imgship.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "imgship"), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}
