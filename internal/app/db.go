package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetDBPath resolves the database path.
// Order of precedence:
// 1) CLI override (--db-path)
// 2) Environment variable: TASKBREW_DB_PATH
// 3) config.yaml: db_path
// 4) Team config: db_path
// 5) Default: ~/.config/taskbrew/taskbrew.db
// Returns an absolute path and ensures the parent directory exists.
func GetDBPath() (string, error) {
	if override := getDBPathOverride(); override != "" {
		return EnsureDBDir(override)
	}

	if envPath := os.Getenv("TASKBREW_DB_PATH"); envPath != "" {
		return EnsureDBDir(envPath)
	}

	cfg, err := LoadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DBPath != "" {
		return EnsureDBDir(cfg.DBPath)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return EnsureDBDir(filepath.Join(configDir, "taskbrew.db"))
}

// EnsureDBDir expands ~ in the path, creates the parent directory, and
// returns the cleaned path. In-memory paths pass through untouched.
func EnsureDBDir(path string) (string, error) {
	if path == ":memory:" || strings.Contains(path, ":memory:") {
		return path, nil
	}

	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return path, nil
}
