// Package config provides configuration management for vpn-verify.
// It loads settings from YAML and validates them before any process is
// spawned.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yllada/vpn-verify/common"
)

// Config holds everything a connect-and-verify run needs.
// It is loaded once at startup and passed explicitly to the monitor and
// verifier.
type Config struct {
	// OpenVPNPath is the OpenVPN executable. A bare name is looked up in PATH.
	OpenVPNPath string `yaml:"openvpn_path"`
	// ConfigPath is the .ovpn file passed as --config.
	ConfigPath string `yaml:"config_path"`
	// SettleDelay is the pause between the completion marker and verification.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// MarkerTimeout bounds the wait for the completion marker. Zero waits
	// until the process exits.
	MarkerTimeout time.Duration `yaml:"marker_timeout"`
	// RequestTimeout bounds each outbound lookup.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RouteCheckAddress is the UDP target used to discover the local address.
	RouteCheckAddress string `yaml:"route_check_address"`
	// PublicIPServices are plain-text address endpoints, tried in order.
	PublicIPServices []string `yaml:"public_ip_services"`
	// GeoLocationURL is a format string taking the public address.
	GeoLocationURL string `yaml:"geolocation_url"`
	// ExpectedPublicAddress is the address traffic should leave from when
	// routed through the tunnel.
	ExpectedPublicAddress string `yaml:"expected_public_address"`
	// FlushDNS flushes the OS resolver cache before verification.
	FlushDNS bool `yaml:"flush_dns"`
	// LogToFile mirrors logs into ~/.config/vpn-verify/logs.
	LogToFile bool `yaml:"log_to_file"`
	// History controls the report database.
	History HistoryConfig `yaml:"history"`
}

// HistoryConfig controls persistence of verification reports.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to ~/.local/share/vpn-verify/history.db.
	Path string `yaml:"path,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OpenVPNPath:           common.DefaultOpenVPNPath,
		SettleDelay:           common.SettleDelay,
		RequestTimeout:        common.RequestTimeout,
		RouteCheckAddress:     common.RouteCheckAddress,
		PublicIPServices:      common.PublicIPServices(),
		GeoLocationURL:        common.GeoLocationURL,
		ExpectedPublicAddress: common.PlaceholderPublicAddress,
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Load reads the configuration file at path on top of DefaultConfig.
// An empty path means the default location; if that file does not exist
// the defaults are returned. An explicit path that does not exist is an
// error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		defaultPath, err := common.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("%w: %w", common.ErrConfigLoad, err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: error parsing %s: %w", common.ErrConfigLoad, path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults restores defaults for fields the file explicitly emptied.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.OpenVPNPath == "" {
		c.OpenVPNPath = defaults.OpenVPNPath
	}
	if c.RouteCheckAddress == "" {
		c.RouteCheckAddress = defaults.RouteCheckAddress
	}
	if len(c.PublicIPServices) == 0 {
		c.PublicIPServices = defaults.PublicIPServices
	}
	if c.GeoLocationURL == "" {
		c.GeoLocationURL = defaults.GeoLocationURL
	}
	if c.ExpectedPublicAddress == "" {
		c.ExpectedPublicAddress = defaults.ExpectedPublicAddress
	}
}

// Validate checks the settings a run depends on. A missing configuration
// file or executable yields an error wrapping common.ErrConfiguration.
func (c *Config) Validate() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("%w: no OpenVPN configuration file given", common.ErrConfiguration)
	}
	if !common.FileExists(c.ConfigPath) {
		return fmt.Errorf("%w: configuration file '%s' does not exist", common.ErrConfiguration, c.ConfigPath)
	}

	if _, err := c.ResolveExecutable(); err != nil {
		return err
	}

	return c.ValidateChecks()
}

// ValidateChecks validates only the settings used by the connectivity
// verifier. It is enough for runs that do not launch OpenVPN.
func (c *Config) ValidateChecks() error {
	if c.SettleDelay < 0 || c.MarkerTimeout < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", common.ErrConfiguration)
	}

	for _, service := range c.PublicIPServices {
		if err := validateHTTPURL(service); err != nil {
			return fmt.Errorf("%w: public IP service %q: %w", common.ErrConfiguration, service, err)
		}
	}

	if strings.Count(c.GeoLocationURL, "%s") != 1 || strings.Count(c.GeoLocationURL, "%") != 1 {
		return fmt.Errorf("%w: geolocation_url must contain exactly one %%s and no other %%", common.ErrConfiguration)
	}
	if err := validateHTTPURL(fmt.Sprintf(c.GeoLocationURL, "192.0.2.1")); err != nil {
		return fmt.Errorf("%w: geolocation_url: %w", common.ErrConfiguration, err)
	}

	return nil
}

// ResolveExecutable returns the path of the OpenVPN executable. Names
// without a directory component are looked up in PATH.
func (c *Config) ResolveExecutable() (string, error) {
	if c.OpenVPNPath == "" {
		return "", fmt.Errorf("%w: no OpenVPN executable given", common.ErrConfiguration)
	}

	if filepath.Base(c.OpenVPNPath) == c.OpenVPNPath {
		path, err := exec.LookPath(c.OpenVPNPath)
		if err != nil {
			return "", fmt.Errorf("%w: OpenVPN executable '%s' not found", common.ErrConfiguration, c.OpenVPNPath)
		}
		return path, nil
	}

	if !common.FileExists(c.OpenVPNPath) {
		return "", fmt.Errorf("%w: OpenVPN executable '%s' not found", common.ErrConfiguration, c.OpenVPNPath)
	}
	return c.OpenVPNPath, nil
}

// UsesPlaceholderAddress reports whether no real expected public address
// has been configured. In that case the routing check cannot succeed.
func (c *Config) UsesPlaceholderAddress() bool {
	return c.ExpectedPublicAddress == common.PlaceholderPublicAddress
}

// HistoryPath returns the configured history database path, or the default.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	return common.DefaultHistoryPath()
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error serializing configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
