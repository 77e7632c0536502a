// Package common provides shared constants, types, and utilities
// used across vpn-verify.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "vpn-verify"
	// ConfigDirName is the name of the configuration and data directories.
	ConfigDirName = "vpn-verify"
)

// File names used by the application.
const (
	ConfigFileName  = "config.yaml"
	LogFileName     = "vpn-verify.log"
	HistoryFileName = "history.db"
)

// OpenVPN integration.
const (
	// DefaultOpenVPNPath is used when no executable is configured.
	DefaultOpenVPNPath = "openvpn"
	// CompletionMarker is printed by OpenVPN once the tunnel is up.
	CompletionMarker = "Initialization Sequence Completed"
)

// Default timeouts and intervals.
const (
	// SettleDelay is the pause after the completion marker before verifying.
	SettleDelay = 5 * time.Second
	// RequestTimeout bounds every outbound lookup request.
	RequestTimeout = 5 * time.Second
	// ProcessStopTimeout is how long OpenVPN gets to exit after an interrupt
	// before it is killed.
	ProcessStopTimeout = 10 * time.Second
)

// Connectivity verification defaults.
const (
	// RouteCheckAddress is dialled over UDP to make the OS pick the outbound
	// interface. No packet is sent.
	RouteCheckAddress = "8.8.8.8:80"
	// PlaceholderPublicAddress is the expected public address when none is
	// configured. No lookup service ever returns it.
	PlaceholderPublicAddress = "OpenVpnAs Ip Address"
	// GeoLocationURL is formatted with the public address.
	GeoLocationURL = "https://ipapi.co/%s/json/"
)

// PublicIPServices returns the default plain-text "what is my IP" endpoints,
// in the order they are tried.
func PublicIPServices() []string {
	return []string{
		"https://api64.ipify.org",
		"https://ifconfig.me",
		"https://icanhazip.com",
	}
}
