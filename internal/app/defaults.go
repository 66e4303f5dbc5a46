package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - IDB_CONFIG_PATH: config file location (default: ~/.config/idb.toml)
//   - IDB_HOME: base directory for idb data (default: ~/.local/share/idb)
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

// getConfigPath returns the config file path, checking IDB_CONFIG_PATH env var first,
// then falling back to the default ~/.config/idb.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("IDB_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "idb.toml"), nil
}

// getBaseDir returns the base directory for idb data, checking IDB_HOME env var first,
// then falling back to the XDG default ~/.local/share/idb.
func getBaseDir() (string, error) {
	if path := os.Getenv("IDB_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "idb"), nil
}
