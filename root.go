package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fruitstock/sav-uploader/internal/config"
	"github.com/fruitstock/sav-uploader/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and carried in
// the command's context.
type CLIContext struct {
	Flags   CLIFlags
	Env     config.EnvOverrides
	CLI     config.CLIOverrides
	Cfg     *config.Config
	CfgPath string
	Logger  *slog.Logger
}

// flushLogs drains buffered error reports. main calls it before exiting; it
// is replaced once the logger is built.
var flushLogs = func() {}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by the root pre-run.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext) //nolint:errcheck // nil when absent

	return cc
}

// mustCLIContext is cliContextFrom for commands that always run after the
// root pre-run.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext missing; command ran without the root pre-run")
	}

	return cc
}

// Resolve re-runs configuration resolution with the same env and CLI
// overrides. Used for reloads.
func (cc *CLIContext) Resolve() (*config.Config, error) {
	return config.Resolve(cc.Env, cc.CLI)
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:     "sav-uploader",
		Short:   "Upload after-sales files to OneDrive and return share links",
		Long:    "Stores uploaded files in a OneDrive folder through Microsoft Graph and\nhands back an anonymous view link for each one.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd, *flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path (env "+config.EnvConfig+")")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "only log errors and suppress status output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration through the four-layer
// override chain and builds the logger from it.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	// serve --listen is the only subcommand flag that feeds the config.
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		listen := f.Value.String()
		cli.Listen = &listen
	}

	if level := flagLogLevel(flags); level != "" {
		cli.LogLevel = &level
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Flags:   flags,
		Env:     env,
		CLI:     cli,
		Cfg:     cfg,
		CfgPath: config.ResolvePath(env, cli),
	}

	cc.Logger, flushLogs = buildLogger(cfg)

	return cc, nil
}

// flagLogLevel maps --verbose and --quiet to a log level. CLI flags beat
// both the config file and LOG_LEVEL.
func flagLogLevel(flags CLIFlags) string {
	switch {
	case flags.Verbose:
		return "debug"
	case flags.Quiet:
		return "error"
	default:
		return ""
	}
}

// buildLogger creates the process logger from the resolved config.
func buildLogger(cfg *config.Config) (*slog.Logger, func()) {
	// Validate already rejected unknown levels.
	level, _ := logging.ParseLevel(cfg.Logging.LogLevel) //nolint:errcheck // validated

	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.LogFormat,
		Output:      os.Stderr,
		SentryDSN:   cfg.Logging.SentryDSN,
		Environment: cfg.Server.Environment,
		Release:     "sav-uploader@" + version,
	})
}

// exitOnError prints err to stderr and exits with status 1.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
