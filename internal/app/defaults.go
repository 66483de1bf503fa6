package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CX_CONFIG_PATH: config file location (default: ~/.config/cx.toml)
//   - CX_HOME: base directory for cx data (default: ~/.local/share/cx)
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
		"output_dir":  filepath.Join(baseDir, "exports"),
	}, nil
}

// getConfigPath returns the config file path, checking CX_CONFIG_PATH env var first,
// then falling back to the default ~/.config/cx.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CX_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cx.toml"), nil
}

// getBaseDir returns the base directory for cx data, checking CX_HOME env var first,
// then falling back to the XDG default ~/.local/share/cx.
func getBaseDir() (string, error) {
	if path := os.Getenv("CX_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cx"), nil
}
