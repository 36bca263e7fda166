package git

import (
	"context"
	"errors"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	builderrors "github.com/olavph/builds/errors"
)

// Fetch fetches remote, restricted to refSpecs when any are given.
// An up-to-date or empty remote is not an error. Transport failures are
// returned as CodeRepository errors wrapping the go-git error.
func (r *Repo) Fetch(ctx context.Context, remote string, refSpecs ...string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	ctx, span := tracer.Start(ctx, "Repo::Fetch", trace.WithAttributes(
		attribute.String("repo", r.Name()),
		attribute.String("remote", remote),
		attribute.StringSlice("refspecs", refSpecs),
	))
	defer span.End()

	specs := make([]config.RefSpec, 0, len(refSpecs))
	for _, s := range refSpecs {
		spec := config.RefSpec(s)
		if err := spec.Validate(); err != nil {
			return fail(span, WrapErrorf(ErrInvalidRef, "invalid refspec %q: %v", s, err))
		}
		specs = append(specs, spec)
	}

	remoteURL, err := r.RemoteURL(remote)
	if err != nil {
		return fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "fetch failed", "remote", remote))
	}

	auth, err := r.auth(remoteURL)
	if err != nil {
		return fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "fetch failed",
			"remote", remote, "url", remoteURL))
	}

	r.logger().InfoContext(ctx, "fetching", "repo", r.Name(), "remote", remote, "refspecs", refSpecs)

	err = r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName:   remote,
		RefSpecs:     specs,
		Auth:         auth,
		ProxyOptions: r.proxy(),
	})
	switch {
	case err == nil:
	case errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
	default:
		return fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "fetch failed",
			"remote", remote, "url", remoteURL))
	}

	return nil
}

// Checkout fetches the main remote, resolves refName (remote-qualified names
// first) and hard-resets the index and worktree to it. Submodules declared at
// the new commit are then initialized and updated, one level deep.
//
// An unresolvable reference leaves the worktree untouched.
func (r *Repo) Checkout(ctx context.Context, refName string, refSpecs ...string) error {
	ctx, span := tracer.Start(ctx, "Repo::Checkout", trace.WithAttributes(
		attribute.String("repo", r.Name()),
		attribute.String("ref", refName),
	))
	defer span.End()

	if r.worktree == nil {
		return fail(span, WrapError(ErrBareRepository, "cannot checkout"))
	}

	if err := r.Fetch(ctx, DefaultRemoteName, refSpecs...); err != nil {
		return fail(span, err)
	}

	hash, err := r.Resolve(refName)
	if err != nil {
		return fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "reference not found", "ref", refName))
	}

	if err := r.worktree.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "reset failed",
			"ref", refName, "commit", hash.String()))
	}

	r.logger().InfoContext(ctx, "checked out", "repo", r.Name(), "ref", refName, "commit", hash.String())

	if err := r.updateSubmodules(ctx); err != nil {
		return fail(span, err)
	}

	return nil
}

// updateSubmodules initializes and updates every submodule of the current
// commit to its recorded commit. Nested submodules are not visited.
func (r *Repo) updateSubmodules(ctx context.Context) error {
	subs, err := r.submodules()
	if err != nil {
		return r.repoError(ctx, err, builderrors.CodeRepository, "failed to list submodules")
	}

	for _, sub := range subs {
		cfg := sub.Config()

		auth, err := r.auth(cfg.URL)
		if err != nil {
			return r.repoError(ctx, err, builderrors.CodeRepository, "submodule update failed",
				"submodule", cfg.Name, "path", cfg.Path)
		}

		if err := discardSubmoduleChanges(sub); err != nil {
			return r.repoError(ctx, err, builderrors.CodeRepository, "submodule reset failed",
				"submodule", cfg.Name, "path", cfg.Path)
		}

		err = sub.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
			Init:              true,
			RecurseSubmodules: git.NoRecurseSubmodules,
			Auth:              auth,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return r.repoError(ctx, err, builderrors.CodeRepository, "submodule update failed",
				"submodule", cfg.Name, "path", cfg.Path)
		}

		r.logger().InfoContext(ctx, "updated submodule", "repo", r.Name(), "submodule", cfg.Name, "path", cfg.Path)
	}

	return nil
}

// discardSubmoduleChanges hard-resets a checked out submodule to its own
// HEAD so the following update can move it without tripping over local
// edits. Uninitialized submodules are left alone.
func discardSubmoduleChanges(sub *git.Submodule) error {
	status, err := sub.Status()
	if err != nil {
		return err
	}
	if status.Current.IsZero() {
		return nil
	}

	repo, err := sub.Repository()
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Reset(&git.ResetOptions{Commit: status.Current, Mode: git.HardReset})
}

// Submodules returns the name and path of each submodule declared at HEAD.
func (r *Repo) Submodules() ([]SubmoduleInfo, error) {
	if r.worktree == nil {
		return nil, WrapError(ErrBareRepository, "cannot list submodules")
	}

	subs, err := r.submodules()
	if err != nil {
		return nil, err
	}

	infos := make([]SubmoduleInfo, 0, len(subs))
	for _, sub := range subs {
		cfg := sub.Config()
		infos = append(infos, SubmoduleInfo{Name: cfg.Name, Path: cfg.Path, URL: cfg.URL})
	}
	return infos, nil
}

// submodules returns the submodules declared at HEAD ordered by path.
// go-git keeps .gitmodules entries in a map, so file order is lost.
func (r *Repo) submodules() (git.Submodules, error) {
	subs, err := r.worktree.Submodules()
	if err != nil {
		return nil, WrapError(err, "failed to list submodules")
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Config().Path < subs[j].Config().Path
	})
	return subs, nil
}

// SubmoduleInfo describes a submodule declared in .gitmodules.
type SubmoduleInfo struct {
	Name string
	Path string
	URL  string
}
