package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/yllada/vpn-verify/config"
)

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), BuildInfo{Version: "1.2.3", BuildTime: "2026-10-19", Commit: "abc1234"}, args, &out, &errOut)
	return code, out.String(), errOut.String()
}

// lookupServers starts a public IP service answering publicIP and a
// geolocation service, and returns a config file pointing at both.
func lookupServers(t *testing.T, publicIP, expected string) string {
	t.Helper()

	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, publicIP)
	}))
	t.Cleanup(public.Close)

	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"city":"Frankfurt","region":"Hesse","country_name":"Germany"}`)
	}))
	t.Cleanup(geo.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`settle_delay: 0s
request_timeout: 2s
public_ip_services:
  - %s
geolocation_url: %s/%%s/json/
expected_public_address: %s
history:
  enabled: true
  path: %s
`, public.URL, geo.URL, expected, filepath.Join(dir, "history.db"))

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	if code != ExitOK {
		t.Errorf("exit code = %d, want %d", code, ExitOK)
	}
	for _, want := range []string{"vpn-verify v1.2.3", "Build:  2026-10-19", "Commit: abc1234"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("version output missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--no-such-flag"}},
		{"unknown command argument", []string{"check", "extra"}},
		{"bad duration", []string{"connect", "--settle-delay", "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != ExitUsage {
				t.Errorf("exit code = %d, want %d", code, ExitUsage)
			}
			if !strings.Contains(stderr, "--help") {
				t.Errorf("stderr should point to --help:\n%s", stderr)
			}
		})
	}
}

func TestRun_ConnectConfigurationError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	missing := filepath.Join(t.TempDir(), "absent.ovpn")

	code, stdout, _ := runCLI(t, "connect", missing)

	if code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
	if !strings.Contains(stdout, "❌") || !strings.Contains(stdout, "does not exist") {
		t.Errorf("stdout should report the missing file:\n%s", stdout)
	}
	if strings.Contains(stdout, "Connecting to OpenVPN") {
		t.Error("nothing should be launched for an invalid configuration")
	}
}

func TestRun_MissingExplicitConfigFile(t *testing.T) {
	code, _, _ := runCLI(t, "check", "--file", filepath.Join(t.TempDir(), "nope.yaml"))
	if code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
}

func TestRun_CheckThenHistory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgPath := lookupServers(t, "203.0.113.9", "203.0.113.9")

	code, stdout, stderr := runCLI(t, "check", "--file", cfgPath)
	if code != ExitOK {
		t.Fatalf("check exit code = %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	for _, want := range []string{
		"Public IP (should match VPN IP): 203.0.113.9",
		"Successfully routed traffic through OpenVPN!",
		"Public IP Location: Frankfurt, Hesse, Germany",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("check output missing %q:\n%s", want, stdout)
		}
	}

	code, stdout, _ = runCLI(t, "history", "--file", cfgPath, "--limit", "5")
	if code != ExitOK {
		t.Fatalf("history exit code = %d", code)
	}
	if !strings.Contains(stdout, "routed") || !strings.Contains(stdout, "203.0.113.9") {
		t.Errorf("history should list the check:\n%s", stdout)
	}
}

func TestRun_CheckNotRoutedWithoutHistory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgPath := lookupServers(t, "198.51.100.7", "203.0.113.9")

	code, stdout, _ := runCLI(t, "check", "--file", cfgPath, "--no-history")
	if code != ExitOK {
		t.Errorf("exit code = %d, want %d", code, ExitOK)
	}
	if !strings.Contains(stdout, "Traffic is NOT going through the VPN") {
		t.Errorf("expected the not-routed warning:\n%s", stdout)
	}

	_, stdout, _ = runCLI(t, "history", "--file", cfgPath)
	if !strings.Contains(stdout, "No verification history.") {
		t.Errorf("--no-history should not record the check:\n%s", stdout)
	}
}

func TestRun_Connect(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake openvpn scripts need a POSIX shell")
	}
	t.Setenv("HOME", t.TempDir())
	cfgPath := lookupServers(t, "203.0.113.9", "203.0.113.9")

	dir := t.TempDir()
	ovpn := filepath.Join(dir, "client.ovpn")
	if err := os.WriteFile(ovpn, []byte("client\n"), 0600); err != nil {
		t.Fatal(err)
	}
	exe := filepath.Join(dir, "openvpn")
	script := `#!/bin/sh
echo "OpenVPN 2.6.12 x86_64-pc-linux-gnu"
echo "Initialization Sequence Completed"
`
	if err := os.WriteFile(exe, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runCLI(t, "connect", ovpn, "--file", cfgPath, "--openvpn", exe, "--no-history")
	if code != ExitOK {
		t.Fatalf("exit code = %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	order := []string{
		"🔄 Connecting to OpenVPN server using config: " + ovpn,
		"OpenVPN 2.6.12 x86_64-pc-linux-gnu",
		"✅ Successfully connected to the VPN!",
		"🎉 Successfully routed traffic through OpenVPN!",
	}
	last := -1
	for _, want := range order {
		idx := strings.Index(stdout, want)
		if idx < 0 {
			t.Fatalf("output missing %q:\n%s", want, stdout)
		}
		if idx < last {
			t.Errorf("%q printed out of order:\n%s", want, stdout)
		}
		last = idx
	}
}

func TestRun_ConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpn-verify", "config.yaml")

	code, stdout, _ := runCLI(t, "config", "init", "--file", path)
	if code != ExitOK {
		t.Fatalf("config init exit code = %d", code)
	}
	if !strings.Contains(stdout, path) {
		t.Errorf("config init should name the file:\n%s", stdout)
	}

	if code, _, _ := runCLI(t, "config", "init", "--file", path); code != ExitError {
		t.Errorf("second config init exit code = %d, want %d", code, ExitError)
	}
	if code, _, _ := runCLI(t, "config", "init", "--file", path, "--force"); code != ExitOK {
		t.Errorf("config init --force exit code = %d, want %d", code, ExitOK)
	}

	code, stdout, _ = runCLI(t, "config", "show", "--file", path)
	if code != ExitOK {
		t.Fatalf("config show exit code = %d", code)
	}
	for _, want := range []string{"openvpn_path: openvpn", "settle_delay: 5s", "expected_public_address: OpenVpnAs Ip Address"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("config show output missing %q:\n%s", want, stdout)
		}
	}
}

func TestOptions_Apply(t *testing.T) {
	var o options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addRunFlags(fs, &o)

	if err := fs.Parse([]string{"--config", "flag.ovpn", "--timeout", "2s", "--expected-ip", "203.0.113.9", "--no-history"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.SettleDelay = 7 * time.Second
	o.apply(fs, cfg, nil)

	if cfg.ConfigPath != "flag.ovpn" {
		t.Errorf("ConfigPath = %q, want flag.ovpn", cfg.ConfigPath)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %v, want 2s", cfg.RequestTimeout)
	}
	if cfg.ExpectedPublicAddress != "203.0.113.9" {
		t.Errorf("ExpectedPublicAddress = %q, want 203.0.113.9", cfg.ExpectedPublicAddress)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should be false with --no-history")
	}
	if cfg.SettleDelay != 7*time.Second {
		t.Errorf("SettleDelay = %v, unset flags must not override the file", cfg.SettleDelay)
	}

	o.apply(fs, cfg, []string{"positional.ovpn"})
	if cfg.ConfigPath != "positional.ovpn" {
		t.Errorf("ConfigPath = %q, positional argument should win", cfg.ConfigPath)
	}
}
