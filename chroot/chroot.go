// Package chroot initializes mock build chroots. Initialization is
// serialized across processes with an exclusive lock on a shared lock file.
package chroot

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/olavph/builds/config"
	"github.com/olavph/builds/errors"
	"github.com/olavph/builds/executor"
)

// Initializer runs mock against one chroot configuration.
type Initializer struct {
	// ConfigFile is the mock configuration passed with -r.
	ConfigFile string

	// UniqueExt is appended to the chroot directory name.
	UniqueExt string

	// Args are extra arguments placed before every command.
	Args []string

	// LockPath is the file locked while the chroot is initialized.
	LockPath string

	// Mock runs the mock binary.
	Mock executor.Executor

	// Output, when set, receives mock's stdout and stderr as they are
	// written. Output is always captured for error reporting.
	Output io.Writer

	// Logger receives operation logs. Nil disables logging.
	Logger *slog.Logger
}

// New returns an Initializer using the builder binary, arguments and lock
// file location from cfg.
func New(cfg *config.Config, configFile, uniqueExt string, logger *slog.Logger) *Initializer {
	return &Initializer{
		ConfigFile: configFile,
		UniqueExt:  uniqueExt,
		Args:       cfg.MockArgs,
		LockPath:   cfg.LockFilePath(),
		Mock:       executor.New(cfg.MockBinary),
		Logger:     logger,
	}
}

// Initialize discards all mock caches for the chroot and installs a fresh
// one. It holds the lock for both commands and waits for it without a
// timeout.
func (i *Initializer) Initialize(ctx context.Context) error {
	unlock, err := i.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := i.Run(ctx, "--scrub", "all"); err != nil {
		return err
	}
	return i.Run(ctx, "--init")
}

// Run executes one mock command with the common arguments.
func (i *Initializer) Run(ctx context.Context, command ...string) error {
	args := make([]string, 0, len(i.Args)+len(command)+4)
	args = append(args, "-r", i.ConfigFile)
	args = append(args, i.Args...)
	args = append(args, "--uniqueext", i.UniqueExt)
	args = append(args, command...)

	var opts []executor.Option
	if i.Output != nil {
		opts = append(opts, executor.WithStdoutWriter(i.Output), executor.WithStderrWriter(i.Output))
	}

	i.logger().InfoContext(ctx, "running mock", "command", executor.CommandLine(i.Mock.Program(), args))
	res, err := i.Mock.Execute(ctx, args, opts...)
	if err != nil {
		attrs := []any{"config", i.ConfigFile, "error", err}
		if res != nil && res.Stderr != "" {
			attrs = append(attrs, "stderr", strings.TrimSpace(res.Stderr))
		}
		i.logger().ErrorContext(ctx, "mock command failed", attrs...)
		return err
	}
	return nil
}

func (i *Initializer) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(i.LockPath), 0o755); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "failed to create lock directory",
			map[string]interface{}{"path": i.LockPath})
	}

	f, err := os.OpenFile(i.LockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "failed to open lock file",
			map[string]interface{}{"path": i.LockPath})
	}

	i.logger().DebugContext(ctx, "waiting for chroot lock", "path", i.LockPath)
	if err := flock(f, unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "failed to lock",
			map[string]interface{}{"path": i.LockPath})
	}
	i.logger().DebugContext(ctx, "acquired chroot lock", "path", i.LockPath)

	return func() {
		if err := flock(f, unix.LOCK_UN); err != nil {
			i.logger().WarnContext(ctx, "failed to unlock", "path", i.LockPath, "error", err)
		}
		_ = f.Close()
	}, nil
}

// flock retries on EINTR.
func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

func (i *Initializer) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return i.Logger
}
