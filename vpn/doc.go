// Package vpn launches OpenVPN and verifies that traffic uses the tunnel.
//
// The package has two cooperating parts:
//
//   - Monitor: starts `openvpn --config <file>`, reads its output line by
//     line through a LineReader, and detects the completion marker
//   - Verifier: once the tunnel is up, looks up the local tunnel address,
//     the public address, and the public address's location
//
// # Connection Flow
//
//  1. config.Config.Validate rejects a missing config file or executable
//  2. Monitor.Run starts OpenVPN and watches stdout (stderr goes to the log)
//  3. On "Initialization Sequence Completed" the monitor waits the settle
//     delay and calls its connected callback exactly once
//  4. The callback typically runs Verifier.Verify and prints the Report
//  5. OpenVPN keeps running until it exits or the context is cancelled
//
// If OpenVPN exits, or the optional marker timeout expires, before the
// marker appears, the callback is never called.
//
// # Sentinel Values
//
// The lookups are best-effort: PublicAddress returns UnknownAddress and
// Location returns UnknownLocation or LocationError instead of failing.
//
// FlushDNS is an optional helper that flushes the resolver cache.
package vpn
