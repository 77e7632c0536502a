package vpn

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yllada/vpn-verify/common"
	"github.com/yllada/vpn-verify/config"
)

// Sentinel values returned instead of errors by the best-effort lookups.
const (
	// UnknownAddress is returned when no address could be determined.
	UnknownAddress = "unavailable"
	// UnknownLocation is returned when the geolocation service answered
	// without a usable location.
	UnknownLocation = "Unknown location"
	// LocationError is returned when the geolocation request itself failed.
	LocationError = "Error retrieving location"
)

const maxResponseSize = 1 << 20

// Outcome is the result of the routing comparison.
type Outcome int

const (
	// OutcomeUnavailable means the public address could not be determined.
	OutcomeUnavailable Outcome = iota
	// OutcomeRouted means the public address matched the expected address.
	OutcomeRouted
	// OutcomeNotRouted means traffic does not appear to use the tunnel.
	OutcomeNotRouted
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeRouted:
		return "routed"
	case OutcomeNotRouted:
		return "not routed"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) Outcome {
	switch s {
	case "routed":
		return OutcomeRouted
	case "not routed":
		return OutcomeNotRouted
	default:
		return OutcomeUnavailable
	}
}

// Report collects what one verification found.
type Report struct {
	RunID           string
	CheckedAt       time.Time
	LocalAddress    string
	PublicAddress   string
	PublicSource    string
	ExpectedAddress string
	// Location is empty unless the routing check succeeded.
	Location string
	Outcome  Outcome
}

// Verifier performs the post-connection checks: local tunnel address,
// public address, and geolocation of the public address. All lookups run
// sequentially and each outbound request is bounded by the configured
// request timeout.
type Verifier struct {
	cfg     *config.Config
	client  *http.Client
	logger  common.Logger
	timeout time.Duration
	dial    func(network, address string) (net.Conn, error)
	now     func() time.Time
}

// NewVerifier creates a verifier for the given configuration.
func NewVerifier(cfg *config.Config) *Verifier {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = common.RequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &Verifier{
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		logger:  common.GetLogger(),
		timeout: timeout,
		dial:    net.Dial,
		now:     time.Now,
	}
}

// SetLogger replaces the logger used for lookup progress and failures.
func (v *Verifier) SetLogger(logger common.Logger) {
	v.logger = logger
}

// Verify runs the checks in order and compares the public address with
// the expected one. On a match it also looks up the location. Lookup
// failures are logged and reflected in the report; Verify never fails.
func (v *Verifier) Verify(ctx context.Context) Report {
	report := Report{
		CheckedAt:       v.now(),
		ExpectedAddress: v.cfg.ExpectedPublicAddress,
	}

	local, err := v.LocalAddress()
	if err != nil {
		v.logger.Error("Could not determine tunnel address: %v", err)
		local = UnknownAddress
	}
	report.LocalAddress = local

	report.PublicAddress, report.PublicSource = v.PublicAddress(ctx)

	v.logger.Info("VPN local IP: %s", report.LocalAddress)
	v.logger.Info("Public IP: %s (expected %s)", report.PublicAddress, report.ExpectedAddress)

	switch {
	case report.PublicAddress == UnknownAddress:
		report.Outcome = OutcomeUnavailable
	case report.PublicAddress == report.ExpectedAddress:
		report.Outcome = OutcomeRouted
		report.Location = v.Location(ctx, report.PublicAddress)
	default:
		report.Outcome = OutcomeNotRouted
		v.logger.Warn("Traffic is NOT going through the VPN")
	}

	return report
}

// LocalAddress returns the address of the interface the OS would use to
// reach the route check address. A UDP "connection" sends nothing; it only binds
// the socket.
func (v *Verifier) LocalAddress() (string, error) {
	conn, err := v.dial("udp", v.cfg.RouteCheckAddress)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrNetworkUnavailable, err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "", fmt.Errorf("%w: unexpected local address %v", common.ErrNetworkUnavailable, conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// PublicAddress asks each configured service in turn and returns the first
// answer together with the service that gave it. If every service fails it
// returns UnknownAddress and an empty source.
func (v *Verifier) PublicAddress(ctx context.Context) (address, source string) {
	v.logger.Info("Checking public IP address through VPN...")

	for _, service := range v.cfg.PublicIPServices {
		body, err := v.get(ctx, service)
		if err != nil {
			v.logger.Warn("Error checking IP with %s: %v", service, err)
			continue
		}

		ip := strings.TrimSpace(string(body))
		if ip == "" {
			v.logger.Warn("Error checking IP with %s: %v", service,
				fmt.Errorf("%w: empty response body", common.ErrNetworkQuery))
			continue
		}

		v.logger.Info("Public IP from %s: %s", service, ip)
		return ip, service
	}

	v.logger.Warn("Failed to check public IP: all %d services failed", len(v.cfg.PublicIPServices))
	return UnknownAddress, ""
}

type geoResponse struct {
	City        string `json:"city"`
	Region      string `json:"region"`
	CountryName string `json:"country_name"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// Location returns "City, Region, Country" for ip, skipping absent fields.
// It returns UnknownLocation when the service has no answer and
// LocationError when the request fails.
func (v *Verifier) Location(ctx context.Context, ip string) string {
	v.logger.Info("Getting location for IP: %s", ip)

	body, err := v.get(ctx, fmt.Sprintf(v.cfg.GeoLocationURL, ip))
	if err != nil {
		var status *statusError
		if errors.As(err, &status) {
			v.logger.Warn("Failed to get location for IP %s: %v", ip, err)
			return UnknownLocation
		}
		v.logger.Warn("Error retrieving IP location: %v", err)
		return LocationError
	}

	var geo geoResponse
	if err := json.Unmarshal(body, &geo); err != nil {
		v.logger.Warn("Error decoding IP location: %v", err)
		return LocationError
	}
	if geo.Error {
		v.logger.Warn("Failed to get location for IP %s: %s", ip, geo.Reason)
		return UnknownLocation
	}

	location := formatLocation(geo.City, geo.Region, geo.CountryName)
	if location == "" {
		return UnknownLocation
	}
	v.logger.Info("Location: %s", location)
	return location
}

func formatLocation(parts ...string) string {
	present := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			present = append(present, part)
		}
	}
	return strings.Join(present, ", ")
}

// statusError reports a non-2xx response.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: http status %d", e.url, e.code)
}

func (e *statusError) Unwrap() error {
	return common.ErrNetworkQuery
}

// get performs one bounded GET and returns the body of a 2xx response.
func (v *Verifier) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNetworkQuery, err)
	}
	req.Header.Set("User-Agent", common.AppName)
	req.Header.Set("Accept", "text/plain, application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNetworkQuery, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNetworkQuery, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{url: url, code: resp.StatusCode}
	}
	return body, nil
}
