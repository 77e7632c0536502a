// Package common provides shared constants, types, and utilities
// used across vpn-verify.
package common

// Logger defines the interface for levelled logging.
// *AppLogger satisfies it; packages accept it so tests can capture output.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...interface{})
	// Info logs an informational message.
	Info(msg string, args ...interface{})
	// Warn logs a warning message.
	Warn(msg string, args ...interface{})
	// Error logs an error message.
	Error(msg string, args ...interface{})
}

var _ Logger = (*AppLogger)(nil)
