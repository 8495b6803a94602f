package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fruitstock/sav-uploader/internal/config"
	"github.com/fruitstock/sav-uploader/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload HTTP server",
		Long: `Run the HTTP server that accepts multipart uploads and answers with the
OneDrive share link of each stored file.

The config file is re-read on SIGHUP (see "sav-uploader reload"). With
--watch-config it is also re-read whenever it changes on disk. A reload
updates allowed origins, upload limits, accepted types and the default
folder; credentials and the listen address need a restart.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address, e.g. :3001 (overrides server.listen and PORT)")
	cmd.Flags().Bool("watch-config", false, "reload the config file when it changes")
	cmd.Flags().String("pid-file", "", "write the process ID here for the reload command")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	up, err := cc.newUploader()
	if err != nil {
		return err
	}

	holder := config.NewHolder(cc.Cfg, cc.CfgPath)

	srv, err := server.New(holder, up, version, logger)
	if err != nil {
		return err
	}

	if pidPath, _ := cmd.Flags().GetString("pid-file"); pidPath != "" { //nolint:errcheck // flag is registered
		cleanup, err := writePIDFile(pidPath)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	reloader := config.NewReloader(holder, cc.Resolve, func(cfg *config.Config) {
		if err := srv.Reconfigure(cfg); err != nil {
			logger.Warn("keeping previous server settings", slog.String("error", err.Error()))
		}
	}, logger)

	ctx := shutdownContext(cmd.Context(), logger, cc.Cfg.Server.ShutdownTimeoutDuration())

	go reloadOnSIGHUP(ctx, reloader, logger)

	if watch, _ := cmd.Flags().GetBool("watch-config"); watch { //nolint:errcheck // flag is registered
		go func() {
			err := reloader.Watch(ctx)
			if errors.Is(err, config.ErrNoConfigFile) {
				logger.Warn("--watch-config ignored: no config file in use")
				return
			}

			if err != nil {
				logger.Error("config watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	return srv.ListenAndServe(ctx, cc.Cfg.Server.Listen)
}

// reloadOnSIGHUP re-resolves the configuration on every SIGHUP until ctx is
// canceled.
func reloadOnSIGHUP(ctx context.Context, r *config.Reloader, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			logger.Info("received SIGHUP, reloading config")
			r.Reload() //nolint:errcheck // logged by Reload
		}
	}
}
