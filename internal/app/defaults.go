// Package app resolves the default filesystem locations the diskuto CLI
// falls back to when not told otherwise.
package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - DISKUTO_CONFIG_PATH: config file location (default: ~/.config/diskuto.toml)
//   - DISKUTO_HOME: base directory for diskuto data (default: ~/.local/share/diskuto)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking DISKUTO_CONFIG_PATH
// env var first, then falling back to the default ~/.config/diskuto.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("DISKUTO_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "diskuto.toml"), nil
}

// getBaseDir returns the base directory for diskuto data, checking
// DISKUTO_HOME env var first, then falling back to the XDG default
// ~/.local/share/diskuto.
func getBaseDir() (string, error) {
	if path := os.Getenv("DISKUTO_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "diskuto"), nil
}
