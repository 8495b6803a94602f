package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownContext is canceled by the first SIGINT or SIGTERM. For serve,
// drain is the shutdown timeout given to in-flight uploads; a second signal
// exits at once. put passes zero: its upload is abandoned on the first signal.
func shutdownContext(parent context.Context, logger *slog.Logger, drain time.Duration) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		var sig os.Signal

		select {
		case sig = <-sigCh:
		case <-ctx.Done():
			return
		}

		if drain > 0 {
			logger.Info("stopping: draining in-flight uploads",
				slog.String("signal", sig.String()),
				slog.Duration("timeout", drain),
			)
		} else {
			logger.Info("stopping: upload canceled", slog.String("signal", sig.String()))
		}

		cancel()

		select {
		case sig = <-sigCh:
			logger.Warn("second signal, exiting without waiting for uploads",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}
