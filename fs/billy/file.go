package billy

import (
	"io/fs"

	"github.com/go-git/go-billy/v5"
)

// File adapts a billy.File to fs.File. billy files have no Stat, so it is
// answered by the filesystem that opened the file.
type File struct {
	billy.File
	owner billy.Basic
}

func newFile(f billy.File, owner billy.Basic) *File {
	return &File{File: f, owner: owner}
}

// Stat returns the file info as seen by the owning filesystem.
func (f *File) Stat() (fs.FileInfo, error) {
	info, err := f.owner.Stat(f.Name())
	if err != nil {
		return nil, pathError("stat", f.Name(), err)
	}
	return info, nil
}
