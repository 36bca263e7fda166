package billy

import (
	stderrors "errors"
	iofs "io/fs"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parentfs "github.com/olavph/builds/fs"
)

func testMkdirAllStat(t *testing.T, fs parentfs.Filesystem, root string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "a/b/c"), 0o755))

	info, err := fs.Stat(filepath.Join(root, "a/b"))
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "expected directory, got file: %v", info.Name())
}

func testCreateWriteReadRemove(t *testing.T, fs parentfs.Filesystem, root string) {
	t.Helper()
	p := filepath.Join(root, "file.txt")

	f, err := fs.Create(p)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.WriteFile(p, []byte("hello"), 0o644))

	b, err := fs.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	exists, err := fs.Exists(p)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, fs.Remove(p))

	exists, err = fs.Exists(p)
	require.NoError(t, err)
	assert.False(t, exists)
}

func testOpenAndReadDir(t *testing.T, fs parentfs.Filesystem, root string) {
	t.Helper()
	p := filepath.Join(root, "open.txt")
	require.NoError(t, fs.WriteFile(p, []byte("abc"), 0o644))

	f, err := fs.Open(p)
	require.NoError(t, err)
	buf := make([]byte, 3)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))
	require.NoError(t, f.Close())

	entries, err := fs.ReadDir(root)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "open.txt")
}

func TestInMemoryFS(t *testing.T) {
	fs := NewInMemoryFS()
	testMkdirAllStat(t, fs, "/")
	testCreateWriteReadRemove(t, fs, "/")
	testOpenAndReadDir(t, fs, "/")
}

func TestOSFS(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFS(dir)
	testMkdirAllStat(t, fs, ".")
	testCreateWriteReadRemove(t, fs, ".")
	testOpenAndReadDir(t, fs, ".")
	assert.Equal(t, dir, fs.Root())
}

func TestRaw(t *testing.T) {
	mem := memfs.New()
	fs := NewFS(mem)
	assert.Equal(t, mem, fs.Raw())
}

func TestExists_Missing(t *testing.T) {
	fs := NewInMemoryFS()
	exists, err := fs.Exists("missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFile_Stat(t *testing.T) {
	fs := NewInMemoryFS()
	require.NoError(t, fs.WriteFile("/work/VERSION", []byte("format: 1\n2.1-beta\n"), 0o644))

	f, err := fs.Open("/work/VERSION")
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "VERSION", info.Name())
	assert.Equal(t, int64(19), info.Size())
}

func TestPathErrors(t *testing.T) {
	fs := NewInMemoryFS()

	_, err := fs.ReadFile("/missing/file")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, iofs.ErrNotExist))

	var pe *iofs.PathError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, "/missing/file", pe.Path)

	_, err = fs.Open("/missing/file")
	assert.True(t, stderrors.Is(err, iofs.ErrNotExist))
}
