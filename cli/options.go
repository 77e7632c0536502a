package cli

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/yllada/vpn-verify/common"
	"github.com/yllada/vpn-verify/config"
)

// options holds the command-line flags. Run flags only override the
// configuration file when they were set explicitly.
type options struct {
	file    string
	verbose bool

	configPath    string
	openvpn       string
	settleDelay   time.Duration
	markerTimeout time.Duration
	timeout       time.Duration
	expectedIP    string
	flushDNS      bool
	noHistory     bool

	limit int
	force bool
}

// addRunFlags registers the flags that override connect and check settings.
func addRunFlags(fs *pflag.FlagSet, o *options) {
	fs.StringVarP(&o.configPath, "config", "c", "", "OpenVPN configuration file (.ovpn)")
	fs.StringVar(&o.openvpn, "openvpn", "", "OpenVPN executable (default \"openvpn\" from PATH)")
	fs.DurationVar(&o.settleDelay, "settle-delay", common.SettleDelay, "wait after the tunnel is up before verifying")
	fs.DurationVar(&o.markerTimeout, "marker-timeout", 0, "give up if the tunnel is not up after this long (0 waits for OpenVPN to exit)")
	fs.DurationVar(&o.timeout, "timeout", common.RequestTimeout, "timeout for each lookup request")
	fs.StringVar(&o.expectedIP, "expected-ip", "", "public address expected when traffic uses the tunnel")
	fs.BoolVar(&o.flushDNS, "flush-dns", false, "flush the DNS cache before verifying")
	fs.BoolVar(&o.noHistory, "no-history", false, "do not record the result in the history database")
}

// apply copies explicitly set flags onto cfg. A positional configuration
// file argument takes precedence over --config.
func (o *options) apply(fs *pflag.FlagSet, cfg *config.Config, args []string) {
	if fs.Changed("config") {
		cfg.ConfigPath = o.configPath
	}
	if len(args) > 0 {
		cfg.ConfigPath = args[0]
	}
	if fs.Changed("openvpn") {
		cfg.OpenVPNPath = o.openvpn
	}
	if fs.Changed("settle-delay") {
		cfg.SettleDelay = o.settleDelay
	}
	if fs.Changed("marker-timeout") {
		cfg.MarkerTimeout = o.markerTimeout
	}
	if fs.Changed("timeout") {
		cfg.RequestTimeout = o.timeout
	}
	if fs.Changed("expected-ip") && o.expectedIP != "" {
		cfg.ExpectedPublicAddress = o.expectedIP
	}
	if fs.Changed("flush-dns") {
		cfg.FlushDNS = o.flushDNS
	}
	if o.noHistory {
		cfg.History.Enabled = false
	}
}
