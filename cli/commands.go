package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yllada/vpn-verify/common"
	"github.com/yllada/vpn-verify/config"
	"github.com/yllada/vpn-verify/history"
	"github.com/yllada/vpn-verify/vpn"
)

func (a *app) newConnectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect [client.ovpn]",
		Short: "Launch OpenVPN and verify the tunnel once it is up",
		Example: `  vpn-verify connect client.ovpn
  vpn-verify connect --config client.ovpn --expected-ip 203.0.113.9
  vpn-verify connect --openvpn /usr/sbin/openvpn --marker-timeout 1m`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runConnect,
	}
	addRunFlags(cmd.Flags(), &a.opts)
	return cmd
}

func (a *app) newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify an already established tunnel without launching OpenVPN",
		Args:  cobra.NoArgs,
		RunE:  a.runCheck,
	}
	addRunFlags(cmd.Flags(), &a.opts)
	return cmd
}

func (a *app) newFlushDNSCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-dns",
		Short: "Flush the operating system's DNS cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printer.FlushingDNS()
			if err := vpn.FlushDNS(cmd.Context()); err != nil {
				return a.fail(fmt.Errorf("flushing DNS: %w", err))
			}
			a.printer.Success("DNS cache flushed successfully!")
			return nil
		},
	}
}

func (a *app) newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past verification results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd, nil)
			if err != nil {
				return a.fail(err)
			}

			path, err := cfg.HistoryPath()
			if err != nil {
				return a.fail(err)
			}
			store, err := history.Open(cmd.Context(), path)
			if err != nil {
				return a.fail(err)
			}
			defer store.Close()

			reports, err := store.Recent(cmd.Context(), a.opts.limit)
			if err != nil {
				return a.fail(err)
			}
			a.printer.History(reports)
			return nil
		},
	}
	cmd.Flags().IntVarP(&a.opts.limit, "limit", "n", history.DefaultLimit, "number of results to show")
	return cmd
}

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd, nil)
			if err != nil {
				return a.fail(err)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return a.fail(err)
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.opts.file
			if path == "" {
				var err error
				if path, err = common.DefaultConfigPath(); err != nil {
					return a.fail(err)
				}
			}
			if common.FileExists(path) && !a.opts.force {
				return a.fail(fmt.Errorf("%w: %s already exists (use --force to overwrite)", common.ErrConfiguration, path))
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return a.fail(err)
			}
			a.printer.Success("Configuration written to %s", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&a.opts.force, "force", false, "overwrite an existing file")

	cmd.AddCommand(showCmd, initCmd)
	return cmd
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "%s v%s\n", common.AppName, a.info.Version)
			if a.info.BuildTime != "" && a.info.BuildTime != "unknown" {
				fmt.Fprintf(a.stdout, "  Build:  %s\n", a.info.BuildTime)
				fmt.Fprintf(a.stdout, "  Commit: %s\n", a.info.Commit)
			}
		},
	}
}

// loadConfig reads the configuration file and applies the command's flags.
func (a *app) loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(a.opts.file)
	if err != nil {
		return nil, err
	}
	a.opts.apply(cmd.Flags(), cfg, args)

	if cfg.LogToFile {
		if err := common.GetLogger().EnableFileLogging(common.GetLogDir()); err != nil {
			a.printer.Warn("Could not initialize file logging: %v", err)
		}
	}
	return cfg, nil
}

// runConnect is the default action: launch OpenVPN, wait for the tunnel,
// verify it, print and record the report.
func (a *app) runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig(cmd, args)
	if err != nil {
		return a.fail(err)
	}

	if err := cfg.Validate(); err != nil {
		return a.fail(err)
	}

	runID := common.NewRunID()
	common.LogDebug("Run %s", runID)
	a.warnPlaceholder(cfg)

	store := a.openHistory(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	verifier := vpn.NewVerifier(cfg)
	monitor := vpn.NewMonitor(cfg)
	monitor.SetLineHandler(a.printer.Line)
	monitor.SetOnConnected(func(ctx context.Context) {
		a.printer.Connected()
		a.verify(ctx, cfg, verifier, store, runID)
	})

	a.printer.Connecting(cfg.ConfigPath)

	result, err := monitor.Run(ctx)
	switch {
	case errors.Is(err, common.ErrMarkerTimeout):
		a.printer.Warn("%v", err)
		return nil
	case err != nil:
		return a.fail(err)
	}

	if !result.Connected && ctx.Err() == nil {
		a.printer.Warn("OpenVPN exited without establishing a connection")
	}
	return nil
}

// runCheck verifies a tunnel that is already up.
func (a *app) runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig(cmd, args)
	if err != nil {
		return a.fail(err)
	}
	if err := cfg.ValidateChecks(); err != nil {
		return a.fail(err)
	}
	a.warnPlaceholder(cfg)

	store := a.openHistory(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	a.verify(ctx, cfg, vpn.NewVerifier(cfg), store, common.NewRunID())
	return nil
}

// verify runs the optional DNS flush and the verifier, then prints and
// records the report.
func (a *app) verify(ctx context.Context, cfg *config.Config, verifier *vpn.Verifier, store *history.Store, runID string) {
	if cfg.FlushDNS {
		a.printer.FlushingDNS()
		if err := vpn.FlushDNS(ctx); err != nil {
			a.printer.Warn("Error flushing DNS: %v", err)
		}
	}

	report := verifier.Verify(ctx)
	report.RunID = runID
	a.printer.Report(report)

	if store == nil {
		return
	}
	if err := store.Save(ctx, report); err != nil {
		common.LogWarn("Could not record verification result: %v", err)
	}
}

// openHistory opens the history database if it is enabled. Failures are
// logged and disable recording for this run.
func (a *app) openHistory(ctx context.Context, cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}

	path, err := cfg.HistoryPath()
	if err != nil {
		common.LogWarn("History disabled: %v", err)
		return nil
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		common.LogWarn("History disabled: %v", err)
		return nil
	}
	return store
}

func (a *app) warnPlaceholder(cfg *config.Config) {
	if cfg.UsesPlaceholderAddress() {
		common.LogWarn("No expected public address configured (still %q); the routing check cannot succeed. Set expected_public_address or --expected-ip.",
			common.PlaceholderPublicAddress)
	}
}
