// Package cli provides the vpn-verify command line: connecting through
// OpenVPN, verifying the tunnel, and inspecting past verifications.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yllada/vpn-verify/common"
)

// Exit codes returned by Execute.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// BuildInfo carries the build-time version variables.
type BuildInfo struct {
	Version   string
	BuildTime string
	Commit    string
}

// exitError marks an error that has already been reported to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// app holds the state shared by all commands of one invocation.
type app struct {
	info    BuildInfo
	opts    options
	stdout  io.Writer
	stderr  io.Writer
	printer *Printer
}

// Execute runs the command line with os.Args and returns the exit code.
// SIGINT and SIGTERM cancel the running command.
func Execute(info BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, info, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, info BuildInfo, args []string, stdout, stderr io.Writer) int {
	a := &app{
		info:    info,
		stdout:  stdout,
		stderr:  stderr,
		printer: NewPrinter(stdout),
	}

	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	defer common.CloseLogger()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", common.AppName)
	return ExitUsage
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   common.AppName + " [client.ovpn]",
		Short: "Connect through OpenVPN and verify that traffic uses the tunnel",
		Long: `vpn-verify launches OpenVPN with a configuration file, waits for the
tunnel to come up, and then checks the local tunnel address, the public
address, and the public address's location.

Running vpn-verify without a command is the same as 'vpn-verify connect'.`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setupLogging,
		RunE:              a.runConnect,
	}

	root.PersistentFlags().StringVarP(&a.opts.file, "file", "f", "", "configuration file (default ~/.config/vpn-verify/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable verbose logging")
	addRunFlags(root.Flags(), &a.opts)

	root.AddCommand(
		a.newConnectCommand(),
		a.newCheckCommand(),
		a.newFlushDNSCommand(),
		a.newHistoryCommand(),
		a.newConfigCommand(),
		a.newVersionCommand(),
	)

	return root
}

// setupLogging configures the shared logger before any command runs.
func (a *app) setupLogging(cmd *cobra.Command, args []string) error {
	level := common.LevelInfo
	if a.opts.verbose {
		level = common.LevelDebug
	}

	logger := common.GetLogger()
	logger.SetOutput(a.stderr)
	return common.InitLogger(common.LogConfig{Level: level})
}

// fail reports err and turns it into an exit code.
func (a *app) fail(err error) error {
	a.printer.Error("Error: %v", err)
	common.LogError("%v", err)
	return &exitError{code: ExitError, err: err}
}
