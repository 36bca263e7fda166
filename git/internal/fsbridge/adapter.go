// Package fsbridge provides adapters between fs.Filesystem and billy.Filesystem
// so go-git storage and worktrees run on the module's filesystem abstraction.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/olavph/builds/fs"
	fsb "github.com/olavph/builds/fs/billy"
)

// ToBillyFilesystem converts an fs.Filesystem to a billy.Filesystem.
// The passed filesystem must be a billy.FS wrapper from the fs/billy package.
//
//nolint:ireturn // returns interface as required by billy.Filesystem interface
func ToBillyFilesystem(fsys fs.Filesystem) (billy.Filesystem, error) {
	billyFS, ok := fsys.(*fsb.FS)
	if !ok {
		return nil, fmt.Errorf("filesystem must be a billy.FS from fs/billy package, got %T", fsys)
	}

	return billyFS.Raw(), nil
}

// Scope converts fsys and chroots it to dir.
//
//nolint:ireturn // returns interface as required by billy.Filesystem interface
func Scope(fsys fs.Filesystem, dir string) (billy.Filesystem, error) {
	billyFS, err := ToBillyFilesystem(fsys)
	if err != nil {
		return nil, err
	}

	scoped, err := billyFS.Chroot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to chroot to %q: %w", dir, err)
	}
	return scoped, nil
}
