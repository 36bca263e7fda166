package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/olavph/builds/fs"
)

const (
	// DefaultCacheSize is the object cache size, in MiB, used when none is given.
	DefaultCacheSize = 96

	minCacheSize = 8
)

// Layout is the storage and worktree of a repository rooted in one directory.
type Layout struct {
	// Storage holds the object database and references.
	Storage *filesystem.Storage

	// Worktree is nil for bare repositories.
	Worktree billy.Filesystem

	// Root is the absolute repository directory as seen by the filesystem.
	Root string
}

// NewStorage creates git storage over dotGit with an LRU object cache.
// Sizes below the minimum are raised to it.
func NewStorage(dotGit billy.Filesystem, cacheSize int) *filesystem.Storage {
	if cacheSize < minCacheSize {
		cacheSize = minCacheSize
	}
	return filesystem.NewStorage(dotGit, cache.NewObjectLRU(cache.FileSize(cacheSize)*cache.MiByte))
}

// Open lays out a repository at dir on fsys. Non-bare repositories keep
// their objects under dir/.git and check files out into dir itself.
func Open(fsys fs.Filesystem, dir string, bare bool, cacheSize int) (*Layout, error) {
	root, err := Scope(fsys, dir)
	if err != nil {
		return nil, err
	}

	if bare {
		return &Layout{Storage: NewStorage(root, cacheSize), Root: root.Root()}, nil
	}

	dotGit, err := root.Chroot(git.GitDirName)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s directory: %w", git.GitDirName, err)
	}
	return &Layout{
		Storage:  NewStorage(dotGit, cacheSize),
		Worktree: root,
		Root:     root.Root(),
	}, nil
}
