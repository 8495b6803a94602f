package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch timing. Editors write a file in several steps, so events are
// coalesced before a reload.
const (
	reloadDebounce      = 250 * time.Millisecond
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// ErrNoConfigFile is returned by Watch when the holder has no file path.
var ErrNoConfigFile = errors.New("config: no config file to watch")

// Reloader re-resolves configuration and publishes it through a Holder.
// A failed reload keeps the previous config.
type Reloader struct {
	holder   *Holder
	resolve  func() (*Config, error)
	onReload func(*Config)
	logger   *slog.Logger
	debounce time.Duration
}

// NewReloader creates a Reloader. resolve is usually a closure over Resolve
// with the process's env and CLI overrides; onReload may be nil.
func NewReloader(holder *Holder, resolve func() (*Config, error), onReload func(*Config), logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reloader{
		holder:   holder,
		resolve:  resolve,
		onReload: onReload,
		logger:   logger,
		debounce: reloadDebounce,
	}
}

// Reload resolves the configuration once and, if it is valid, swaps it in.
func (r *Reloader) Reload() error {
	cfg, err := r.resolve()
	if err != nil {
		r.logger.Warn("config reload failed, keeping previous config",
			slog.String("path", r.holder.Path()),
			slog.String("error", err.Error()),
		)

		return err
	}

	changed := r.holder.Update(cfg)
	r.logger.Info("config reloaded",
		slog.String("path", r.holder.Path()),
		slog.Any("changed", changed),
	)

	if pending := RestartRequired(changed); len(pending) > 0 {
		r.logger.Warn("some changes need a server restart", slog.Any("keys", pending))
	}

	if r.onReload != nil {
		r.onReload(cfg)
	}

	return nil
}

// Watch reloads whenever the config file changes, until ctx is canceled.
// The parent directory is watched so atomic renames by editors are seen.
func (r *Reloader) Watch(ctx context.Context) error {
	path := r.holder.Path()
	if path == "" {
		return ErrNoConfigFile
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	r.logger.Info("watching config file", slog.String("path", path))

	return r.watchLoop(ctx, watcher, filepath.Clean(path))
}

func (r *Reloader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) error {
	debounce := time.NewTimer(r.debounce)
	debounce.Stop()

	defer debounce.Stop()

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != path || ev.Op == fsnotify.Chmod {
				continue
			}

			debounce.Reset(r.debounce)
			errBackoff = watchErrInitBackoff

		case <-debounce.C:
			r.Reload() //nolint:errcheck // logged by Reload

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			r.logger.Warn("config watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff = min(errBackoff*watchErrBackoffMult, watchErrMaxBackoff)
		}
	}
}
