package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment
// variables first. Environment variables:
//   - CHRONICLE_CONFIG_PATH: config file location (default: ~/.config/chronicle.toml)
//   - CHRONICLE_HOME: base directory for chronicle data (default: ~/.local/share/chronicle)
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

// getConfigPath returns the config file path, checking CHRONICLE_CONFIG_PATH
// first, then falling back to the default ~/.config/chronicle.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CHRONICLE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "chronicle.toml"), nil
}

// getBaseDir returns the base directory for chronicle data, checking
// CHRONICLE_HOME first, then falling back to the XDG default
// ~/.local/share/chronicle.
func getBaseDir() (string, error) {
	if path := os.Getenv("CHRONICLE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "chronicle"), nil
}
