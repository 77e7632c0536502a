// Package common provides shared constants, types, utilities, and interfaces
// used throughout vpn-verify.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: OpenVPN marker, default timeouts, lookup endpoints, file names
//   - Errors: Sentinel errors for consistent error handling across packages
//   - Interfaces: The Logger abstraction accepted by the vpn package
//   - Logger: Levelled logging to stderr and an optional rotated log file
//   - Utils: Config/data directory helpers and run identifiers
//
// # Usage
//
//	// Use constants
//	delay := common.SettleDelay
//
//	// Use logger
//	common.LogInfo("Launching %s", executable)
//
//	// Check errors
//	if errors.Is(err, common.ErrConfiguration) {
//	    // Missing config file or executable
//	}
package common
