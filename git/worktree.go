package git

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	builderrors "github.com/olavph/builds/errors"
)

// Signature identifies an author/committer.
type Signature struct {
	// Name is the author's or committer's name.
	Name string

	// Email is the author's or committer's email address.
	Email string

	// When is the timestamp for the signature. Zero means now.
	When time.Time
}

func (s Signature) object() *object.Signature {
	when := s.When
	if when.IsZero() {
		when = time.Now()
	}
	return &object.Signature{Name: s.Name, Email: s.Email, When: when}
}

// CommitChanges stages every change in the worktree, tracked or not, and
// records one commit with who as both author and committer. A clean worktree
// still produces a commit.
func (r *Repo) CommitChanges(ctx context.Context, msg string, who Signature) (plumbing.Hash, error) {
	_, span := tracer.Start(ctx, "Repo::CommitChanges", trace.WithAttributes(attribute.String("repo", r.Name())))
	defer span.End()

	if r.worktree == nil {
		return plumbing.ZeroHash, fail(span, WrapError(ErrBareRepository, "cannot commit"))
	}

	if msg == "" {
		return plumbing.ZeroHash, fail(span, WrapError(ErrInvalidRef, "commit message cannot be empty"))
	}

	if who.Name == "" || who.Email == "" {
		return plumbing.ZeroHash, fail(span, WrapError(ErrInvalidRef, "committer name and email are required"))
	}

	if err := r.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "failed to stage changes"))
	}

	sig := who.object()
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return plumbing.ZeroHash, fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "failed to create commit"))
	}

	r.logger().InfoContext(ctx, "committed changes", "repo", r.Name(), "commit", hash.String(), "author", who.Email)
	return hash, nil
}
