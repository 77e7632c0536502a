package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/yllada/vpn-verify/vpn"
)

// Status markers printed in front of console messages.
const (
	markerConnecting = "🔄"
	markerSuccess    = "✅"
	markerWarning    = "⚠️"
	markerError      = "❌"
	markerTunnel     = "🛜"
	markerPublic     = "🌍"
	markerRouted     = "🎉"
	markerFlush      = "🧹"
)

// Printer writes human-readable progress and reports to the console.
// Styling is only applied when the output is a terminal.
type Printer struct {
	out    io.Writer
	styled bool

	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	label   lipgloss.Style
	dim     lipgloss.Style
}

// NewPrinter creates a printer for out, styled if out is a terminal.
func NewPrinter(out io.Writer) *Printer {
	return newPrinter(out, isTerminal(out))
}

func newPrinter(out io.Writer, styled bool) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:     out,
		styled:  styled,
		success: r.NewStyle().Foreground(lipgloss.Color("#5fd75f")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("#ffaf00")).Bold(true),
		failure: r.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true),
		label:   r.NewStyle().Foreground(lipgloss.Color("#5f87ff")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#808080")),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *Printer) println(marker string, style lipgloss.Style, msg string) {
	fmt.Fprintf(p.out, "%s %s\n", marker, p.render(style, msg))
}

// Connecting announces the OpenVPN launch.
func (p *Printer) Connecting(configPath string) {
	p.println(markerConnecting, p.label, "Connecting to OpenVPN server using config: "+configPath)
}

// Line echoes one line of OpenVPN output.
func (p *Printer) Line(line string) {
	fmt.Fprintln(p.out, p.render(p.dim, line))
}

// Connected announces that the tunnel is up.
func (p *Printer) Connected() {
	p.println(markerSuccess, p.success, "Successfully connected to the VPN!")
}

// FlushingDNS announces a DNS cache flush.
func (p *Printer) FlushingDNS() {
	p.println(markerFlush, p.label, "Flushing DNS cache...")
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...interface{}) {
	p.println(markerSuccess, p.success, fmt.Sprintf(format, args...))
}

// Warn prints a warning.
func (p *Printer) Warn(format string, args ...interface{}) {
	p.println(markerWarning, p.warning, fmt.Sprintf(format, args...))
}

// Error prints an error.
func (p *Printer) Error(format string, args ...interface{}) {
	p.println(markerError, p.failure, fmt.Sprintf(format, args...))
}

// Report prints the outcome of a verification.
func (p *Printer) Report(report vpn.Report) {
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "%s %s %s\n", markerTunnel, p.render(p.label, "VPN Local IP:"), report.LocalAddress)
	fmt.Fprintf(p.out, "%s %s %s\n", markerPublic, p.render(p.label, "Public IP (should match VPN IP):"), report.PublicAddress)

	switch report.Outcome {
	case vpn.OutcomeRouted:
		p.println(markerRouted, p.success, "Successfully routed traffic through OpenVPN!")
		fmt.Fprintf(p.out, "%s %s %s\n", markerPublic, p.render(p.label, "Public IP Location:"), report.Location)
	case vpn.OutcomeNotRouted:
		p.println(markerWarning, p.warning, "WARNING: Traffic is NOT going through the VPN.")
	default:
		p.println(markerWarning, p.warning, "Failed to check public IP.")
	}
}

// History prints past reports as a table, newest first.
func (p *Printer) History(reports []vpn.Report) {
	if len(reports) == 0 {
		fmt.Fprintln(p.out, "No verification history.")
		return
	}

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECKED\tOUTCOME\tLOCAL IP\tPUBLIC IP\tLOCATION\tRUN")
	fmt.Fprintln(w, "-------\t-------\t--------\t---------\t--------\t---")

	for _, report := range reports {
		location := report.Location
		if location == "" {
			location = "-"
		}

		// Truncate run ID for display
		shortID := report.RunID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			report.CheckedAt.Local().Format(time.DateTime),
			report.Outcome, report.LocalAddress, report.PublicAddress, location, shortID)
	}

	w.Flush()
}
