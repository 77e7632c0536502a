// Package main provides the entry point for vpn-verify.
// vpn-verify connects to an OpenVPN server with a configuration file and,
// once the tunnel is up, checks whether traffic actually leaves through it.
//
// Features:
//   - Launches OpenVPN and echoes its output until the tunnel is established
//   - Reports the tunnel address, the public address and its location
//   - Optional DNS cache flush before verification
//   - Local history of verification results
//
// Usage:
//
//	vpn-verify [command] [flags]
//
// Environment:
//
//	The connect command requires OpenVPN to be installed on the system.
package main

import (
	"os"

	"github.com/yllada/vpn-verify/cli"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{
		Version:   appVersion,
		BuildTime: buildTime,
		Commit:    commitSHA,
	}))
}
