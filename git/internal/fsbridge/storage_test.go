package fsbridge

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olavph/builds/fs/billy"
)

func TestNewStorage(t *testing.T) {
	for _, size := range []int{500, 0, -1, 10000} {
		memFS := memfs.New()
		storage := NewStorage(memFS, size)
		require.NotNil(t, storage)
		assert.Equal(t, memFS, storage.Filesystem())
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name     string
		bare     bool
		validate func(t *testing.T, mem *billy.FS, layout *Layout)
	}{
		{
			name: "worktree keeps objects under .git",
			validate: func(t *testing.T, mem *billy.FS, layout *Layout) {
				require.NotNil(t, layout.Worktree)

				_, err := git.Init(layout.Storage, layout.Worktree)
				require.NoError(t, err)

				ok, err := mem.Exists("/work/example/.git/HEAD")
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
		{
			name: "bare repository stores objects in place",
			bare: true,
			validate: func(t *testing.T, mem *billy.FS, layout *Layout) {
				assert.Nil(t, layout.Worktree)

				_, err := git.Init(layout.Storage, nil)
				require.NoError(t, err)

				ok, err := mem.Exists("/work/example/HEAD")
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := billy.NewInMemoryFS()

			layout, err := Open(mem, "/work/example", tt.bare, DefaultCacheSize)
			require.NoError(t, err)
			assert.Equal(t, "/work/example", layout.Root)

			tt.validate(t, mem, layout)
		})
	}
}

func TestOpen_RejectsForeignFilesystem(t *testing.T) {
	_, err := Open(&otherFilesystem{}, "/work/example", false, DefaultCacheSize)
	require.Error(t, err)
}
