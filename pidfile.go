package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o755
)

// errNoServer is returned by sendSIGHUP when no server owns the PID file.
var errNoServer = errors.New("no running server")

func newReloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running server to re-read its configuration",
		Long: `Send SIGHUP to the server started with "serve --pid-file". The server
re-resolves its configuration and keeps the previous one if the new one is
invalid.`,
		Args: cobra.NoArgs,
		RunE: runReload,
	}

	cmd.Flags().String("pid-file", "", "PID file written by serve --pid-file")
	_ = cmd.MarkFlagRequired("pid-file") //nolint:errcheck // flag is registered above

	return cmd
}

func runReload(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	pidPath, _ := cmd.Flags().GetString("pid-file") //nolint:errcheck // flag is registered

	if err := sendSIGHUP(pidPath); err != nil {
		return err
	}

	cc.Statusf("Reload requested.\n")

	return nil
}

// writePIDFile records the current PID in path under an exclusive flock so
// a second server using the same file fails fast. The returned cleanup
// removes the file and releases the lock.
func writePIDFile(path string) (cleanup func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another server is already running (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s", path)
	}

	return pid, nil
}

// sendSIGHUP signals the server whose PID is stored in pidPath. The server
// holds an exclusive flock on the file while it runs; a file nobody has
// locked is stale, so it is removed and nothing is signaled even if its PID
// now belongs to another process.
func sendSIGHUP(pidPath string) error {
	pid, err := readPIDFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: no PID file at %s", errNoServer, pidPath)
	}

	if err != nil {
		return err
	}

	locked, err := pidFileLocked(pidPath)
	if err != nil {
		return err
	}

	if !locked {
		os.Remove(pidPath)

		return fmt.Errorf("%w: PID file for %d is not held by a server (stale file removed)", errNoServer, pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("sending SIGHUP to PID %d: %w", pid, err)
	}

	return nil
}

// pidFileLocked reports whether a running server holds the lock on path.
func pidFileLocked(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening PID file: %w", err)
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return true, nil
	}

	if err != nil {
		return false, fmt.Errorf("checking PID file lock: %w", err)
	}

	syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck // released on close anyway

	return false, nil
}
