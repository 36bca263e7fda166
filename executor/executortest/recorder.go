// Package executortest provides a recording executor.Executor for tests.
package executortest

import (
	"context"
	"io"
	"sync"

	"github.com/olavph/builds/executor"
)

// Call is one recorded invocation.
type Call struct {
	Args []string
	Dir  string
	Env  map[string]string

	// Combined reports whether stdout and stderr were requested interleaved.
	Combined bool

	// Stdout and Stderr are the streaming writers passed by the caller.
	Stdout io.Writer
	Stderr io.Writer
}

// Recorder implements executor.Executor without running anything.
// Handler, when set, decides the result of each call.
type Recorder struct {
	Name    string
	Handler func(ctx context.Context, call Call) (*executor.Result, error)

	mu    sync.Mutex
	calls []Call
}

// New returns a Recorder for program that succeeds on every call.
func New(program string) *Recorder {
	return &Recorder{Name: program}
}

// Program implements executor.Executor.
func (r *Recorder) Program() string {
	return r.Name
}

// Execute implements executor.Executor.
func (r *Recorder) Execute(ctx context.Context, args []string, opts ...executor.Option) (*executor.Result, error) {
	options := executor.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	call := Call{
		Args:     append([]string(nil), args...),
		Dir:      options.WorkingDir,
		Env:      options.Env,
		Combined: options.CaptureCombined,
		Stdout:   options.StdoutWriter,
		Stderr:   options.StderrWriter,
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	handler := r.Handler
	r.mu.Unlock()

	if handler != nil {
		return handler(ctx, call)
	}
	return &executor.Result{}, nil
}

// Calls returns a copy of the recorded invocations in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
