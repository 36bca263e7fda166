// Package repository returns local working copies of remote repositories,
// reusing an existing directory when it holds a valid working copy and
// cloning or checking out from scratch otherwise.
//
// Existing directories are never removed or repaired: a directory that is
// not a readable working copy of the expected kind is reported as
// CodeRepositoryFormat and left for the operator.
package repository

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/olavph/builds/config"
	"github.com/olavph/builds/errors"
	"github.com/olavph/builds/executor"
	"github.com/olavph/builds/fs"
	fsb "github.com/olavph/builds/fs/billy"
	"github.com/olavph/builds/git"
	"github.com/olavph/builds/git/auth"
	"github.com/olavph/builds/svn"
)

// WorkingCopy is the capability shared by every repository kind.
// Git working copies additionally commit, push and archive; see *git.Repo.
type WorkingCopy interface {
	Name() string
	Path() string
	Checkout(ctx context.Context, ref string) error
}

var (
	_ WorkingCopy = gitWorkingCopy{}
	_ WorkingCopy = (*svn.WorkingCopy)(nil)
)

// gitWorkingCopy checks out without custom refspecs.
type gitWorkingCopy struct {
	*git.Repo
}

func (g gitWorkingCopy) Checkout(ctx context.Context, ref string) error {
	return g.Repo.Checkout(ctx, ref)
}

// Factory creates working copies under a filesystem root.
type Factory struct {
	// FS holds the working copies. Defaults to the OS filesystem rooted at "/".
	FS fs.Filesystem

	// ProxyURL is applied to clones and svn checkouts.
	ProxyURL string

	// Auth resolves git credentials per remote URL. Optional.
	Auth git.AuthProvider

	// ArchiveMode is passed to every git working copy.
	ArchiveMode git.ArchiveMode

	// SvnExec runs the svn client. Defaults to executor.New("svn").
	SvnExec executor.Executor

	// Logger receives operation logs. Nil disables logging.
	Logger *slog.Logger
}

// NewFactory builds a Factory from cfg on the OS filesystem.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		ProxyURL:    cfg.HTTPProxy,
		ArchiveMode: cfg.GitArchiveMode(),
		Logger:      logger,
	}

	creds := auth.Credentials{
		Username:         cfg.Credentials.Username,
		Token:            cfg.Credentials.Token,
		SSHKeyPath:       cfg.Credentials.SSHKeyPath,
		SSHKeyPassphrase: cfg.Credentials.SSHKeyPassphrase,
		AllowedHosts:     cfg.Credentials.AllowedHosts,
	}
	if !creds.Empty() {
		f.Auth = auth.New(creds)
	}

	return f
}

func (f *Factory) fs() fs.Filesystem {
	if f.FS == nil {
		f.FS = fsb.NewOSFS("/")
	}
	return f.FS
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

// NameFromURL returns the last path segment of remoteURL without its
// extension, the directory name git uses by default. A trailing "/.git"
// is skipped.
func NameFromURL(remoteURL string) string {
	p := remoteURL
	if u, err := url.Parse(remoteURL); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.LastIndex(remoteURL, ":"); i >= 0 {
		// scp-like syntax: user@host:org/repo.git
		p = remoteURL[i+1:]
	}

	p = strings.TrimSuffix(strings.TrimSuffix(p, "/"), "/.git")
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// GetGitRepository returns the git working copy of remoteURL at
// parentDir/name, deriving name from the URL when empty.
//
// An existing working copy is reopened and its main remote re-pointed at
// remoteURL; nothing is fetched. A missing directory is cloned.
func (f *Factory) GetGitRepository(ctx context.Context, remoteURL, parentDir, name string) (*git.Repo, error) {
	if remoteURL == "" {
		return nil, errors.New(errors.CodeInvalidInput, "remote URL is required")
	}
	if name == "" {
		name = NameFromURL(remoteURL)
	}
	if name == "" || name == "." || name == "/" {
		return nil, errors.Newf(errors.CodeInvalidInput, "cannot derive repository name from %q", remoteURL)
	}

	repoPath, err := fs.GetAbs(filepath.Join(parentDir, name))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "invalid repository path")
	}

	log := f.logger().With("repo", name, "path", repoPath)

	exists, err := f.fs().Exists(repoPath)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeRepository, "failed to inspect repository path",
			map[string]interface{}{"path": repoPath})
	}

	opts := f.gitOptions(repoPath)
	if !exists {
		log.DebugContext(ctx, "repository path does not exist, cloning", "url", remoteURL)

		repo, err := git.Clone(ctx, remoteURL, opts)
		if err != nil {
			log.ErrorContext(ctx, "failed to clone repository", "url", remoteURL, "error", err)
			return nil, errors.WrapWithContext(err, errors.CodeRepository, "failed to clone repository",
				map[string]interface{}{"url": remoteURL, "path": repoPath})
		}
		return repo, nil
	}

	repo, err := git.Open(ctx, opts)
	if err != nil {
		log.ErrorContext(ctx, "repository has an invalid format, remove it and try again", "error", err)
		return nil, errors.WrapWithContext(err, errors.CodeRepositoryFormat,
			"git repository has an invalid format; remove it and try again",
			map[string]interface{}{"path": repoPath})
	}

	log.InfoContext(ctx, "found existing repository")
	if err := repo.ForceCreateRemote(ctx, git.DefaultRemoteName, remoteURL); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeRepository, "failed to update main remote",
			map[string]interface{}{"path": repoPath, "url": remoteURL})
	}

	return repo, nil
}

// GetSvnRepository returns the svn working copy of remoteURL at repoPath,
// checking it out when the path does not exist.
func (f *Factory) GetSvnRepository(ctx context.Context, remoteURL, repoPath string) (*svn.WorkingCopy, error) {
	opts := &svn.Options{
		Exec:     f.SvnExec,
		FS:       f.fs(),
		ProxyURL: f.ProxyURL,
		Logger:   f.Logger,
	}

	exists, err := f.fs().Exists(repoPath)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeRepository, "failed to inspect repository path",
			map[string]interface{}{"path": repoPath})
	}

	if exists {
		return svn.Open(ctx, remoteURL, repoPath, opts)
	}
	return svn.CheckoutFrom(ctx, remoteURL, repoPath, opts)
}

// Get dispatches on kind ("git" or "svn"). Either kind lives at
// parentDir/<name>, with name derived from the URL when empty.
func (f *Factory) Get(ctx context.Context, kind, remoteURL, parentDir, name string) (WorkingCopy, error) {
	switch kind {
	case "", "git":
		repo, err := f.GetGitRepository(ctx, remoteURL, parentDir, name)
		if err != nil {
			return nil, err
		}
		return gitWorkingCopy{repo}, nil
	case "svn":
		if name == "" {
			name = NameFromURL(remoteURL)
		}
		return f.GetSvnRepository(ctx, remoteURL, filepath.Join(parentDir, name))
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown repository kind %q", kind)
	}
}

func (f *Factory) gitOptions(repoPath string) *git.Options {
	return &git.Options{
		FS:          f.fs(),
		Workdir:     repoPath,
		Auth:        f.Auth,
		ProxyURL:    f.ProxyURL,
		Logger:      f.Logger,
		ArchiveMode: f.ArchiveMode,
	}
}
