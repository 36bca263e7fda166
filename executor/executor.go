// Package executor runs external programs (svn, tar, mock) with output
// capture, environment management and context support for cancellation.
package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/olavph/builds/errors"
)

// Result holds the output and exit status of a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// Executor runs a program bound at construction time with per-call arguments.
type Executor interface {
	// Execute runs the program with args and returns its result.
	// A non-zero exit status is reported as an error with CodeExecutionFailed.
	Execute(ctx context.Context, args []string, opts ...Option) (*Result, error)

	// Program returns the executable this executor runs.
	Program() string
}

// CommandExecutor implements Executor on top of os/exec.
type CommandExecutor struct {
	program string
	options *Options
}

// Options configures command execution behavior.
type Options struct {
	// Output handling
	CaptureStdout   bool
	CaptureStderr   bool
	CaptureCombined bool

	// WorkingDir is the directory the command runs in.
	WorkingDir string

	// Env holds variables appended to the current environment.
	Env map[string]string

	// StdoutWriter and StderrWriter receive a copy of the output as it is
	// produced.
	StdoutWriter io.Writer
	StderrWriter io.Writer
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns default execution options.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout:   true,
		CaptureStderr:   true,
		CaptureCombined: false,
		Env:             make(map[string]string),
	}
}

// New creates a CommandExecutor for program. Base options apply to every call
// and may be overridden per call.
func New(program string, base ...Option) *CommandExecutor {
	options := DefaultOptions()
	for _, opt := range base {
		opt(options)
	}
	return &CommandExecutor{
		program: program,
		options: options,
	}
}

// Program implements Executor.
func (c *CommandExecutor) Program() string {
	return c.program
}

// Execute implements Executor.
func (c *CommandExecutor) Execute(ctx context.Context, args []string, opts ...Option) (*Result, error) {
	options := c.mergeOptions(opts...)

	cmd := exec.CommandContext(ctx, c.program, args...)
	c.setupCommand(cmd, options)
	stdoutBuf, stderrBuf, combinedBuf := c.setupOutputCapture(cmd, options)

	err := cmd.Run()

	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combinedBuf.String(),
		ExitCode: exitCode(err),
	}

	if err != nil {
		return result, errors.WrapWithContext(err, errors.CodeExecutionFailed, "command execution failed",
			map[string]interface{}{
				"command":   CommandLine(c.program, args),
				"exit_code": result.ExitCode,
			})
	}
	return result, nil
}

// setupCommand configures the exec.Cmd with working directory and environment.
func (c *CommandExecutor) setupCommand(cmd *exec.Cmd, options *Options) {
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	if len(options.Env) > 0 {
		keys := make([]string, 0, len(options.Env))
		for k := range options.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, options.Env[k]))
		}
	}
}

// setupOutputCapture configures stdout and stderr writers for the command.
func (c *CommandExecutor) setupOutputCapture(
	cmd *exec.Cmd,
	options *Options,
) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer

	stdoutWriters := []io.Writer{}
	switch {
	case options.CaptureCombined:
		stdoutWriters = append(stdoutWriters, &combinedBuf)
	case options.CaptureStdout:
		stdoutWriters = append(stdoutWriters, &stdoutBuf)
	}
	if options.StdoutWriter != nil {
		stdoutWriters = append(stdoutWriters, options.StdoutWriter)
	}
	if len(stdoutWriters) > 0 {
		cmd.Stdout = io.MultiWriter(stdoutWriters...)
	}

	stderrWriters := []io.Writer{}
	switch {
	case options.CaptureCombined:
		stderrWriters = append(stderrWriters, &combinedBuf)
	case options.CaptureStderr:
		stderrWriters = append(stderrWriters, &stderrBuf)
	}
	if options.StderrWriter != nil {
		stderrWriters = append(stderrWriters, options.StderrWriter)
	}
	if len(stderrWriters) > 0 {
		cmd.Stderr = io.MultiWriter(stderrWriters...)
	}

	return &stdoutBuf, &stderrBuf, &combinedBuf
}

func (c *CommandExecutor) mergeOptions(opts ...Option) *Options {
	merged := *c.options
	merged.Env = make(map[string]string, len(c.options.Env))
	for k, v := range c.options.Env {
		merged.Env[k] = v
	}

	for _, opt := range opts {
		opt(&merged)
	}

	return &merged
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case stderrors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		return -1
	}
}

// CommandLine renders program and args as a single shell-like string for logs.
func CommandLine(program string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, program)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Option functions for fluent configuration

// WithCapture configures output capture
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithWorkingDir sets the working directory
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithEnvVar adds a single environment variable
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithStdoutWriter sets a custom stdout writer
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter sets a custom stderr writer
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}
