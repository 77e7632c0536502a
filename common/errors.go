// Package common provides shared constants, types, and utilities
// used across vpn-verify.
package common

import "errors"

// Sentinel errors for vpn-verify operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Configuration errors: missing config file or executable. Fatal.
	ErrConfiguration = errors.New("configuration error")
	ErrConfigLoad    = errors.New("failed to load configuration")

	// Process errors.
	ErrProcessLaunch = errors.New("failed to launch openvpn")
	ErrMarkerTimeout = errors.New("timed out waiting for openvpn to initialize")

	// Network errors.
	ErrNetworkQuery       = errors.New("network query failed")
	ErrNetworkUnavailable = errors.New("no network interface available")

	// Storage errors.
	ErrHistory = errors.New("history store error")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
