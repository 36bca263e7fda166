package git

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	builderrors "github.com/olavph/builds/errors"
	"github.com/olavph/builds/executor"
	"github.com/olavph/builds/fs"
	fsb "github.com/olavph/builds/fs/billy"
	"github.com/olavph/builds/git/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default LRU object cache size in MiB.
	DefaultStorerCacheSize = fsbridge.DefaultCacheSize

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the main remote. It always points at the URL the
	// working copy was last requested for.
	DefaultRemoteName = "origin"

	// PushRemoteName is the auxiliary remote used as push target so that
	// pushing never rewrites the main remote.
	PushRemoteName = "push-remote"
)

var tracer = otel.Tracer("git")

// Options configures repository discovery/creation, network access and
// archive production.
type Options struct {
	// FS is the REQUIRED native filesystem root (OS or in-memory).
	// All repository state lives within this filesystem.
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to "." (current directory in FS).
	Workdir string

	// Bare indicates a repository without worktree.
	Bare bool

	// StorerCacheSize sets the LRU object cache size in MiB.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int

	// Auth is an optional provider that resolves per-URL AuthMethod.
	// If nil, no authentication will be available.
	Auth AuthProvider

	// ProxyURL is an optional HTTP proxy for clone, fetch and push.
	ProxyURL string

	// Logger receives operation logs. Nil disables logging.
	Logger *slog.Logger

	// ArchiveMode selects how submodule trees are combined by Archive.
	// Defaults to ArchiveMerge.
	ArchiveMode ArchiveMode

	// ArtifactFS receives archive files. Defaults to the OS filesystem.
	// ArchiveConcatenate runs tar on the produced files, so it needs an
	// OS-backed ArtifactFS.
	ArtifactFS fs.Filesystem

	// Tar runs the tar program for ArchiveConcatenate.
	// Defaults to executor.New("tar").
	Tar executor.Executor
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}

	if o.ProxyURL != "" {
		u, err := url.Parse(o.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return WrapErrorf(ErrInvalidRef, "invalid proxy URL %q", o.ProxyURL)
		}
	}

	if !o.ArchiveMode.valid() {
		return WrapErrorf(ErrInvalidRef, "unknown archive mode %d", o.ArchiveMode)
	}

	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	if o.ArtifactFS == nil {
		o.ArtifactFS = fsb.NewOSFS("/")
	}

	if o.Tar == nil {
		o.Tar = executor.New("tar")
	}
}

// AuthProvider resolves authentication methods for git operations.
type AuthProvider interface {
	// Method returns the transport.AuthMethod for the given remote URL.
	// Returns nil if no authentication is needed/available for this URL.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// Repo is one local git working copy. It wraps a go-git Repository and
// Worktree and exposes only the operations the build pipeline needs.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	path     string
	options  Options
	push     pushFunc
}

// Init creates a new git repository at the configured workdir.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	return setup(ctx, "init", opts, func(s *filesystem.Storage, wt gobilly.Filesystem) (*git.Repository, error) {
		return git.Init(s, wt)
	})
}

// Open opens an existing repository at the configured workdir. A directory
// that is not a readable repository yields an error; callers decide whether
// that is a format problem.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	return setup(ctx, "open", opts, func(s *filesystem.Storage, wt gobilly.Filesystem) (*git.Repository, error) {
		return git.Open(s, wt)
	})
}

// Clone creates a new repository by cloning remoteURL into the configured
// workdir. The main remote is named DefaultRemoteName. Nothing beyond the
// default branch is checked out; submodules are left for Checkout.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}

	ctx, span := tracer.Start(ctx, "git::Clone", trace.WithAttributes(attribute.String("url", remoteURL)))
	defer span.End()

	r, err := setup(ctx, "clone", opts, func(s *filesystem.Storage, wt gobilly.Filesystem) (*git.Repository, error) {
		cloneOpts := &git.CloneOptions{
			URL:        remoteURL,
			RemoteName: DefaultRemoteName,
		}
		if opts.ProxyURL != "" {
			cloneOpts.ProxyOptions = transport.ProxyOptions{URL: opts.ProxyURL}
		}

		auth, err := authFor(opts.Auth, remoteURL)
		if err != nil {
			return nil, err
		}
		cloneOpts.Auth = auth

		return git.CloneContext(ctx, s, wt, cloneOpts)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	r.logger().InfoContext(ctx, "cloned repository", "repo", r.Name(), "url", remoteURL, "path", r.path)
	return r, nil
}

func setup(
	ctx context.Context,
	op string,
	opts *Options,
	create func(*filesystem.Storage, gobilly.Filesystem) (*git.Repository, error),
) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	layout, err := fsbridge.Open(opts.FS, opts.Workdir, opts.Bare, opts.StorerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("filesystem conversion failed: %w", err)
	}

	repo, err := create(layout.Storage, layout.Worktree)
	if err != nil {
		return nil, WrapErrorf(err, "failed to %s repository at %q", op, layout.Root)
	}

	r := &Repo{
		repo:    repo,
		path:    layout.Root,
		options: *opts,
	}
	r.push = r.pushRemote

	if !opts.Bare {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, WrapError(err, "failed to get worktree")
		}
		r.worktree = worktree
	}

	r.logger().DebugContext(ctx, "repository ready", "op", op, "path", r.path)
	return r, nil
}

// Name returns the working copy name, the base name of its directory.
func (r *Repo) Name() string {
	return filepath.Base(r.path)
}

// Path returns the working copy directory as seen by the filesystem root.
func (r *Repo) Path() string {
	return r.path
}

// Raw returns the underlying go-git repository.
func (r *Repo) Raw() *git.Repository {
	return r.repo
}

func (r *Repo) logger() *slog.Logger {
	return r.options.Logger
}

func (r *Repo) auth(remoteURL string) (transport.AuthMethod, error) {
	return authFor(r.options.Auth, remoteURL)
}

func (r *Repo) proxy() transport.ProxyOptions {
	return transport.ProxyOptions{URL: r.options.ProxyURL}
}

//nolint:ireturn // go-git consumes the interface
func authFor(provider AuthProvider, remoteURL string) (transport.AuthMethod, error) {
	if provider == nil {
		return nil, nil
	}

	method, err := provider.Method(remoteURL)
	if err != nil {
		return nil, WrapErrorf(ErrAuthRequired, "no credentials for %s: %v", remoteURL, err)
	}
	return method, nil
}

// repoError converts err into the repository error taxonomy and logs it.
func (r *Repo) repoError(ctx context.Context, err error, code builderrors.ErrorCode, msg string, kv ...string) error {
	fields := map[string]interface{}{"repo": r.Name()}
	attrs := []any{"repo", r.Name(), "error", err}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
		attrs = append(attrs, kv[i], kv[i+1])
	}

	r.logger().ErrorContext(ctx, msg, attrs...)
	return builderrors.WrapWithContext(err, code, msg, fields)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
