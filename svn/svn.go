// Package svn manages a local Subversion working copy by driving the svn
// command line client.
//
// A WorkingCopy is bound to one URL at checkout time. Checkout runs a
// best-effort "svn update" followed by an authoritative checkout of the
// requested revision; only the second step can fail the operation.
package svn

import (
	"context"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/olavph/builds/errors"
	"github.com/olavph/builds/executor"
	"github.com/olavph/builds/fs"
	fsb "github.com/olavph/builds/fs/billy"
)

// AdminDirName is the administrative directory inside a working copy root.
const AdminDirName = ".svn"

var tracer = otel.Tracer("svn")

// combinedOutput keeps svn's messages in the order it printed them.
var combinedOutput = executor.WithCapture(false, false, true)

func output(res *executor.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Combined)
}

// Options configures the svn client.
type Options struct {
	// Exec runs the svn program. Defaults to executor.New("svn").
	Exec executor.Executor

	// FS is used to inspect working copies. Defaults to the OS filesystem.
	FS fs.Filesystem

	// ProxyURL is an optional HTTP proxy passed to svn as server
	// configuration options.
	ProxyURL string

	// Logger receives operation logs. Nil disables logging.
	Logger *slog.Logger
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	if o.ProxyURL == "" {
		return nil
	}

	u, err := url.Parse(o.ProxyURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid proxy URL",
			map[string]interface{}{"proxy": o.ProxyURL})
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Exec == nil {
		o.Exec = executor.New("svn")
	}
	if o.FS == nil {
		o.FS = fsb.NewOSFS("/")
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// WorkingCopy is one local svn checkout bound to a remote URL.
type WorkingCopy struct {
	url     string
	path    string
	options Options
}

// CheckoutFrom checks remoteURL out into path, which must not exist yet.
func CheckoutFrom(ctx context.Context, remoteURL, path string, opts *Options) (*WorkingCopy, error) {
	w, err := newWorkingCopy(remoteURL, path, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "svn::CheckoutFrom", trace.WithAttributes(
		attribute.String("url", remoteURL),
		attribute.String("path", w.path),
	))
	defer span.End()

	exists, err := w.options.FS.Exists(w.path)
	if err != nil {
		return nil, fail(span, w.repoError(ctx, err, "failed to inspect working copy path"))
	}
	if exists {
		return nil, fail(span, errors.New(errors.CodeAlreadyExists, "working copy path already exists").
			WithContext("path", w.path))
	}

	w.logger().InfoContext(ctx, "checking out repository", "url", remoteURL, "path", w.path)

	args := append([]string{"checkout"}, w.proxyArgs()...)
	args = append(args, remoteURL, w.path)
	res, err := w.options.Exec.Execute(ctx, args, combinedOutput)
	if err != nil {
		return nil, fail(span, w.repoError(ctx, err, "failed to check out repository",
			"url", remoteURL, "output", output(res)))
	}

	return w, nil
}

// Open binds an existing working copy at path to remoteURL. A directory
// without svn metadata is reported as CodeRepositoryFormat.
func Open(ctx context.Context, remoteURL, path string, opts *Options) (*WorkingCopy, error) {
	w, err := newWorkingCopy(remoteURL, path, opts)
	if err != nil {
		return nil, err
	}

	ok, err := w.options.FS.Exists(filepath.Join(w.path, AdminDirName))
	if err != nil {
		return nil, w.repoError(ctx, err, "failed to inspect working copy")
	}
	if !ok {
		return nil, w.formatError(ctx)
	}

	w.logger().InfoContext(ctx, "found existing working copy", "repo", w.Name(), "path", w.path)
	return w, nil
}

func newWorkingCopy(remoteURL, path string, opts *Options) (*WorkingCopy, error) {
	if opts == nil {
		opts = &Options{}
	}
	if remoteURL == "" || path == "" {
		return nil, errors.New(errors.CodeInvalidInput, "remote URL and path are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	options := *opts
	options.applyDefaults()

	abs, err := fs.GetAbs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to resolve working copy path")
	}

	return &WorkingCopy{url: remoteURL, path: abs, options: options}, nil
}

// Name returns the base name of the working copy directory.
func (w *WorkingCopy) Name() string {
	return filepath.Base(w.path)
}

// Path returns the working copy directory.
func (w *WorkingCopy) Path() string {
	return w.path
}

// URL returns the remote URL the working copy is bound to.
func (w *WorkingCopy) URL() string {
	return w.url
}

// Checkout brings the working copy to revision. The preceding update is
// advisory: its failure is logged and ignored. A failed revision checkout
// is a CodeRepository error naming the revision.
func (w *WorkingCopy) Checkout(ctx context.Context, revision string) error {
	ctx, span := tracer.Start(ctx, "WorkingCopy::Checkout", trace.WithAttributes(
		attribute.String("repo", w.Name()),
		attribute.String("revision", revision),
	))
	defer span.End()

	if revision == "" {
		return fail(span, errors.New(errors.CodeInvalidInput, "revision cannot be empty"))
	}

	w.logger().InfoContext(ctx, "updating working copy", "repo", w.Name())
	args := append([]string{"update"}, w.proxyArgs()...)
	if res, err := w.options.Exec.Execute(ctx, args, executor.WithWorkingDir(w.path), combinedOutput); err != nil {
		w.logger().WarnContext(ctx, "update failed, continuing with revision checkout",
			"repo", w.Name(), "error", err, "output", output(res))
	} else {
		w.logger().InfoContext(ctx, "updated working copy", "repo", w.Name())
	}

	w.logger().InfoContext(ctx, "checking out revision", "repo", w.Name(), "revision", revision)
	args = append([]string{"checkout"}, w.proxyArgs()...)
	args = append(args, w.url+"@"+revision, ".")
	res, err := w.options.Exec.Execute(ctx, args, executor.WithWorkingDir(w.path), combinedOutput)
	if err != nil {
		return fail(span, w.repoError(ctx, err, "could not find revision",
			"revision", revision, "output", output(res)))
	}

	return nil
}

// proxyArgs renders the proxy as svn runtime server options.
func (w *WorkingCopy) proxyArgs() []string {
	if w.options.ProxyURL == "" {
		return nil
	}

	u, err := url.Parse(w.options.ProxyURL)
	if err != nil {
		return nil
	}

	args := []string{"--config-option", "servers:global:http-proxy-host=" + u.Scheme + "://" + u.Hostname()}
	if port := u.Port(); port != "" {
		args = append(args, "--config-option", "servers:global:http-proxy-port="+port)
	}
	return args
}

func (w *WorkingCopy) logger() *slog.Logger {
	return w.options.Logger
}

func (w *WorkingCopy) repoError(ctx context.Context, err error, msg string, kv ...string) error {
	fields := map[string]interface{}{"repo": w.Name(), "path": w.path}
	attrs := []any{"repo", w.Name(), "path", w.path, "error", err}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		fields[kv[i]] = kv[i+1]
		attrs = append(attrs, kv[i], kv[i+1])
	}

	w.logger().ErrorContext(ctx, msg, attrs...)
	return errors.WrapWithContext(err, errors.CodeRepository, msg, fields)
}

func (w *WorkingCopy) formatError(ctx context.Context) error {
	msg := "directory is not an svn working copy; remove it and try again"
	w.logger().ErrorContext(ctx, msg, "path", w.path)
	return errors.WrapWithContext(nil, errors.CodeRepositoryFormat, msg,
		map[string]interface{}{"path": w.path})
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
