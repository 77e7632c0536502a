// Package common provides shared constants, types, and utilities
// used across vpn-verify.
package common

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// NewRunID returns an identifier for one connect-and-verify session.
// It tags log lines and history rows.
func NewRunID() string {
	return uuid.NewString()
}

// GetConfigDir returns the path to the application configuration directory.
// It does not create the directory.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}
	return filepath.Join(homeDir, ".config", ConfigDirName), nil
}

// GetDataDir returns the path to the application data directory.
// It creates the directory if it doesn't exist.
func GetDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}

	dataDir := filepath.Join(homeDir, ".local", "share", ConfigDirName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", WrapError(err, "failed to create data directory")
	}

	return dataDir, nil
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DefaultConfigPath returns ~/.config/vpn-verify/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// DefaultHistoryPath returns ~/.local/share/vpn-verify/history.db.
func DefaultHistoryPath() (string, error) {
	dir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, HistoryFileName), nil
}
