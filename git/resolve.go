package git

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// RevisionResolver resolves a single revision expression.
// *git.Repository satisfies it.
type RevisionResolver interface {
	ResolveRevision(rev plumbing.Revision) (*plumbing.Hash, error)
}

// CandidateNames returns the names tried for refName, in order: refName
// qualified by each remote, then refName itself.
func CandidateNames(refName string, remotes []string) []string {
	candidates := make([]string, 0, len(remotes)+1)
	for _, remote := range remotes {
		candidates = append(candidates, remote+"/"+refName)
	}
	return append(candidates, refName)
}

// ResolveReference resolves refName to a commit. Remote-qualified names win
// over the bare name and the first candidate that resolves is used.
func ResolveReference(resolver RevisionResolver, refName string, remotes []string) (plumbing.Hash, error) {
	if strings.TrimSpace(refName) == "" {
		return plumbing.ZeroHash, WrapError(ErrInvalidRef, "reference name cannot be empty")
	}

	candidates := CandidateNames(refName, remotes)
	for _, name := range candidates {
		hash, err := resolver.ResolveRevision(plumbing.Revision(name))
		if err == nil && hash != nil {
			return *hash, nil
		}
	}

	return plumbing.ZeroHash, WrapErrorf(ErrResolveFailed, "reference %q not found (tried %s)",
		refName, strings.Join(candidates, ", "))
}

// Resolve resolves refName against this repository's remotes.
func (r *Repo) Resolve(refName string) (plumbing.Hash, error) {
	remotes, err := r.RemoteNames()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return ResolveReference(r.repo, refName, remotes)
}

// Head returns the commit HEAD points at.
func (r *Repo) Head() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, WrapError(err, "failed to read HEAD")
	}
	return ref.Hash(), nil
}
