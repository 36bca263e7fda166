// Package gittest builds on-disk origin repositories for tests and serves
// file:// URLs through go-git's in-process transport, so no git binary is
// needed.
package gittest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/require"
)

var installOnce sync.Once

// InstallFileTransport routes file:// URLs to an in-process server rooted
// at "/".
func InstallFileTransport() {
	installOnce.Do(func() {
		client.InstallProtocol("file", server.NewServer(server.NewFilesystemLoader(osfs.New("/"))))
	})
}

// Signature is the identity used for origin commits.
var Signature = object.Signature{Name: "Origin Author", Email: "origin@example.com"}

// Origin is a non-bare repository on disk acting as a remote.
type Origin struct {
	Dir  string
	Repo *git.Repository
}

// NewOrigin creates an empty origin under a fresh temporary directory
// named name.
func NewOrigin(t *testing.T, name string) *Origin {
	t.Helper()
	InstallFileTransport()

	dir := filepath.Join(t.TempDir(), name)
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err, "failed to init origin")

	return &Origin{Dir: dir, Repo: repo}
}

// URL returns the file:// URL clients use to reach the origin.
func (o *Origin) URL() string {
	return "file://" + filepath.Join(o.Dir, git.GitDirName)
}

// Commit writes files (path to content) and commits them on the current
// branch.
func (o *Origin) Commit(t *testing.T, msg string, files map[string]string) plumbing.Hash {
	t.Helper()

	wt, err := o.Repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(o.Dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err, "failed to add %s", name)
	}

	return o.commit(t, wt, msg)
}

// AddSubmodule records sub's HEAD at path, declares it in .gitmodules under
// name and commits.
func (o *Origin) AddSubmodule(t *testing.T, name, path string, sub *Origin) plumbing.Hash {
	t.Helper()

	wt, err := o.Repo.Worktree()
	require.NoError(t, err)

	gitmodules := "[submodule \"" + name + "\"]\n" +
		"\tpath = " + path + "\n" +
		"\turl = " + sub.URL() + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(o.Dir, ".gitmodules"), []byte(gitmodules), 0o644))
	_, err = wt.Add(".gitmodules")
	require.NoError(t, err)

	idx, err := o.Repo.Storer.Index()
	require.NoError(t, err)
	entry := idx.Add(path)
	entry.Hash = sub.Head(t)
	entry.Mode = filemode.Submodule
	entry.ModifiedAt = time.Now()
	require.NoError(t, o.Repo.Storer.SetIndex(idx))

	return o.commit(t, wt, "add submodule "+name)
}

func (o *Origin) commit(t *testing.T, wt *git.Worktree, msg string) plumbing.Hash {
	t.Helper()

	sig := Signature
	sig.When = time.Now()
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author:            &sig,
		Committer:         &sig,
		AllowEmptyCommits: true,
	})
	require.NoError(t, err, "failed to commit %q", msg)
	return hash
}

// Branch points refs/heads/<name> at hash.
func (o *Origin) Branch(t *testing.T, name string, hash plumbing.Hash) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	require.NoError(t, o.Repo.Storer.SetReference(ref))
}

// Tag points refs/tags/<name> at hash.
func (o *Origin) Tag(t *testing.T, name string, hash plumbing.Hash) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), hash)
	require.NoError(t, o.Repo.Storer.SetReference(ref))
}

// Head returns the commit HEAD resolves to.
func (o *Origin) Head(t *testing.T) plumbing.Hash {
	t.Helper()
	ref, err := o.Repo.Head()
	require.NoError(t, err)
	return ref.Hash()
}

// Ref returns the hash of the named reference.
func (o *Origin) Ref(t *testing.T, name plumbing.ReferenceName) plumbing.Hash {
	t.Helper()
	ref, err := o.Repo.Reference(name, true)
	require.NoError(t, err, "reference %s missing", name)
	return ref.Hash()
}
