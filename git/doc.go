// Package git manages local git working copies for the build pipeline.
//
// A Repo wraps a go-git repository and worktree living on the module's
// filesystem abstraction (OS-backed or in-memory) and exposes the operations
// the pipeline needs and nothing more:
//
//   - remote upkeep (ForceCreateRemote, RemoteNames)
//   - fetch and checkout, with reference resolution that prefers
//     remote-qualified names ("origin/main") over bare ones ("main")
//   - one-level submodule initialization and update after checkout
//   - gzip-compressed tar archives of HEAD and its submodules
//   - committing every change and pushing HEAD to an auxiliary remote
//
// # Basic Usage
//
//	fsys := billy.NewOSFS("/")
//	repo, err := git.Clone(ctx, "https://host/example.git", &git.Options{
//	    FS:      fsys,
//	    Workdir: "/work/example",
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := repo.Checkout(ctx, "release-1.0"); err != nil {
//	    return err
//	}
//
//	archive, err := repo.Archive(ctx, "example-1.0", "/work/build")
//
// # Errors
//
// Operations return *errors.Error values from the module's errors package
// with CodeRepository or CodeArchiveFailed, and
// *PushError when a push result carries the error flag. The sentinel errors
// in this package (ErrResolveFailed, ErrInvalidRef, ...) stay reachable
// through errors.Is.
//
// # Observability
//
// Operations log through the slog.Logger in Options and open spans on the
// global OpenTelemetry tracer provider.
package git
