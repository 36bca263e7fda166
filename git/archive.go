package git

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	builderrors "github.com/olavph/builds/errors"
	"github.com/olavph/builds/executor"
	"github.com/olavph/builds/fs"
)

// ArchiveMode selects how Archive combines the main tree with submodules.
type ArchiveMode int8

const (
	// ArchiveMerge collects the main tree and every submodule tree into one
	// path map and writes a single tar stream.
	ArchiveMerge ArchiveMode = iota

	// ArchiveConcatenate writes one tar per tree and appends the submodule
	// tars to the main one with "tar --concatenate", one at a time. Some tar
	// implementations mishandle chains of more than two archives; corrupt
	// output is not detected here.
	ArchiveConcatenate
)

// String returns a human-readable representation of the ArchiveMode.
func (m ArchiveMode) String() string {
	switch m {
	case ArchiveMerge:
		return "merge"
	case ArchiveConcatenate:
		return "concatenate"
	default:
		return "unknown"
	}
}

func (m ArchiveMode) valid() bool {
	return m == ArchiveMerge || m == ArchiveConcatenate
}

// ParseArchiveMode maps "merge" or "concatenate" to an ArchiveMode.
// The empty string selects ArchiveMerge.
func ParseArchiveMode(s string) (ArchiveMode, error) {
	switch strings.ToLower(s) {
	case "", "merge":
		return ArchiveMerge, nil
	case "concatenate":
		return ArchiveConcatenate, nil
	default:
		return ArchiveMerge, WrapErrorf(ErrInvalidRef, "unknown archive mode %q", s)
	}
}

type archiveEntry struct {
	header *tar.Header
	blob   *object.Blob
}

// archiveTree is an ordered path map of tar entries. Re-adding a path
// replaces the entry in place.
type archiveTree struct {
	commit  plumbing.Hash
	order   []string
	entries map[string]*archiveEntry
}

func newArchiveTree(commit plumbing.Hash) *archiveTree {
	return &archiveTree{commit: commit, entries: make(map[string]*archiveEntry)}
}

func (t *archiveTree) put(e *archiveEntry) {
	name := e.header.Name
	if _, ok := t.entries[name]; !ok {
		t.order = append(t.order, name)
	}
	t.entries[name] = e
}

func (t *archiveTree) merge(other *archiveTree) {
	for _, name := range other.order {
		t.put(other.entries[name])
	}
}

func (t *archiveTree) names() []string {
	return append([]string(nil), t.order...)
}

// write emits a pax global header carrying the commit id, then every entry
// in insertion order.
func (t *archiveTree) write(w io.Writer) error {
	tw := tar.NewWriter(w)

	if err := tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": t.commit.String()},
		Format:     tar.FormatPAX,
	}); err != nil {
		return fmt.Errorf("failed to write global header: %w", err)
	}

	for _, name := range t.order {
		e := t.entries[name]
		if err := tw.WriteHeader(e.header); err != nil {
			return fmt.Errorf("failed to write header for %q: %w", name, err)
		}
		if e.blob == nil || e.header.Typeflag != tar.TypeReg {
			continue
		}

		rc, err := e.blob.Reader()
		if err != nil {
			return fmt.Errorf("failed to read blob for %q: %w", name, err)
		}
		_, err = io.Copy(tw, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to write %q: %w", name, err)
		}
	}

	return tw.Close()
}

// collectTree gathers the tree of commit under prefix, which must end in "/".
// Submodule entries become empty directories.
func collectTree(s storer.EncodedObjectStorer, commit *object.Commit, prefix string) (*archiveTree, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, WrapErrorf(err, "failed to read tree of %s", commit.Hash)
	}

	mtime := commit.Committer.When
	out := newArchiveTree(commit.Hash)
	out.put(&archiveEntry{header: dirHeader(prefix, mtime)})

	err = walkTree(s, tree, "", func(name string, entry object.TreeEntry) error {
		full := prefix + name

		switch entry.Mode {
		case filemode.Dir, filemode.Submodule:
			out.put(&archiveEntry{header: dirHeader(full+"/", mtime)})
			return nil
		case filemode.Regular, filemode.Deprecated, filemode.Executable, filemode.Symlink:
		default:
			return fmt.Errorf("unsupported mode %s for %q", entry.Mode, name)
		}

		blob, err := object.GetBlob(s, entry.Hash)
		if err != nil {
			return WrapErrorf(err, "failed to read blob %s", entry.Hash)
		}

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     full,
			Mode:     0o644,
			Size:     blob.Size,
			ModTime:  mtime,
			Format:   tar.FormatPAX,
		}

		switch entry.Mode {
		case filemode.Executable:
			hdr.Mode = 0o755
		case filemode.Symlink:
			target, err := blobString(blob)
			if err != nil {
				return err
			}
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = target
			hdr.Mode = 0o777
			hdr.Size = 0
		}

		out.put(&archiveEntry{header: hdr, blob: blob})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func walkTree(s storer.EncodedObjectStorer, tree *object.Tree, base string, fn func(string, object.TreeEntry) error) error {
	for _, entry := range tree.Entries {
		name := path.Join(base, entry.Name)
		if err := fn(name, entry); err != nil {
			return err
		}

		if entry.Mode != filemode.Dir {
			continue
		}

		sub, err := object.GetTree(s, entry.Hash)
		if err != nil {
			return WrapErrorf(err, "failed to read tree %q", name)
		}
		if err := walkTree(s, sub, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func dirHeader(name string, mtime time.Time) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     0o755,
		ModTime:  mtime,
		Format:   tar.FormatPAX,
	}
}

func blobString(b *object.Blob) (string, error) {
	rc, err := b.Reader()
	if err != nil {
		return "", WrapError(err, "failed to read symlink target")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", WrapError(err, "failed to read symlink target")
	}
	return string(data), nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, WrapError(err, "failed to read HEAD")
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, WrapErrorf(err, "failed to read commit %s", ref.Hash())
	}
	return commit, nil
}

// archivePart is one tree of the archive: the main repository or a submodule.
type archivePart struct {
	// name is empty for the main repository.
	name string
	tree *archiveTree
}

// SubArchiveName returns the file name used for a submodule tar in
// ArchiveConcatenate mode.
func SubArchiveName(archiveName, submoduleName string) string {
	return fmt.Sprintf("%s-%s.tar", archiveName, strings.ReplaceAll(submoduleName, "/", "_"))
}

// Archive writes <buildDir>/<archiveName>.tar.gz holding the HEAD tree under
// "<archiveName>/" and each submodule's HEAD tree under
// "<archiveName>/<submodule path>/". Submodules must have been updated by
// Checkout. It returns the path of the archive.
func (r *Repo) Archive(ctx context.Context, archiveName, buildDir string) (string, error) {
	ctx, span := tracer.Start(ctx, "Repo::Archive", trace.WithAttributes(
		attribute.String("repo", r.Name()),
		attribute.String("name", archiveName),
		attribute.String("mode", r.options.ArchiveMode.String()),
	))
	defer span.End()

	if r.worktree == nil {
		return "", fail(span, WrapError(ErrBareRepository, "cannot archive"))
	}

	if archiveName == "" || strings.ContainsRune(archiveName, '/') {
		return "", fail(span, WrapErrorf(ErrInvalidRef, "invalid archive name %q", archiveName))
	}

	dir, err := fs.GetAbs(buildDir)
	if err != nil {
		return "", fail(span, WrapErrorf(err, "invalid build directory %q", buildDir))
	}

	parts, err := r.archiveParts(archiveName)
	if err != nil {
		return "", fail(span, r.repoError(ctx, err, builderrors.CodeArchiveFailed, "archive failed", "name", archiveName))
	}

	if err := r.options.ArtifactFS.MkdirAll(dir, 0o755); err != nil {
		return "", fail(span, r.repoError(ctx, err, builderrors.CodeArchiveFailed, "archive failed", "path", dir))
	}

	var out string
	switch r.options.ArchiveMode {
	case ArchiveConcatenate:
		out, err = r.archiveConcatenate(ctx, archiveName, dir, parts)
	default:
		out, err = r.archiveMerge(archiveName, dir, parts)
	}
	if err != nil {
		return "", fail(span, r.repoError(ctx, err, builderrors.CodeArchiveFailed, "archive failed",
			"name", archiveName, "mode", r.options.ArchiveMode.String()))
	}

	r.logger().InfoContext(ctx, "created archive", "repo", r.Name(), "path", out,
		"mode", r.options.ArchiveMode.String(), "submodules", len(parts)-1)
	return out, nil
}

func (r *Repo) archiveParts(archiveName string) ([]archivePart, error) {
	prefix := archiveName + "/"

	commit, err := headCommit(r.repo)
	if err != nil {
		return nil, err
	}

	main, err := collectTree(r.repo.Storer, commit, prefix)
	if err != nil {
		return nil, err
	}
	parts := []archivePart{{tree: main}}

	subs, err := r.submodules()
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		cfg := sub.Config()

		subRepo, err := sub.Repository()
		if err != nil {
			return nil, WrapErrorf(err, "failed to open submodule %q", cfg.Name)
		}

		subCommit, err := headCommit(subRepo)
		if err != nil {
			return nil, WrapErrorf(err, "submodule %q is not checked out", cfg.Name)
		}

		tree, err := collectTree(subRepo.Storer, subCommit, prefix+strings.Trim(cfg.Path, "/")+"/")
		if err != nil {
			return nil, err
		}
		parts = append(parts, archivePart{name: cfg.Name, tree: tree})
	}

	return parts, nil
}

func (r *Repo) archiveMerge(archiveName, dir string, parts []archivePart) (string, error) {
	merged := newArchiveTree(parts[0].tree.commit)
	for _, p := range parts {
		merged.merge(p.tree)
	}

	out := filepath.Join(dir, archiveName+".tar.gz")
	if err := r.writeGzip(out, merged.write); err != nil {
		return "", err
	}
	return out, nil
}

func (r *Repo) archiveConcatenate(ctx context.Context, archiveName, dir string, parts []archivePart) (string, error) {
	mainTar := archiveName + ".tar"
	if err := r.writeFile(filepath.Join(dir, mainTar), parts[0].tree.write); err != nil {
		return "", err
	}

	for _, p := range parts[1:] {
		subTar := SubArchiveName(archiveName, p.name)
		if err := r.writeFile(filepath.Join(dir, subTar), p.tree.write); err != nil {
			return "", err
		}

		if _, err := r.options.Tar.Execute(ctx,
			[]string{"--concatenate", "--file", mainTar, subTar},
			executor.WithWorkingDir(dir),
		); err != nil {
			return "", WrapErrorf(err, "failed to append %s", subTar)
		}
	}

	mainPath := filepath.Join(dir, mainTar)
	out := mainPath + ".gz"
	err := r.writeGzip(out, func(w io.Writer) error {
		f, err := r.options.ArtifactFS.Open(mainPath)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return "", err
	}

	if err := r.options.ArtifactFS.Remove(mainPath); err != nil {
		return "", WrapErrorf(err, "failed to remove %s", mainPath)
	}
	return out, nil
}

func (r *Repo) writeGzip(name string, body func(io.Writer) error) error {
	return r.writeFile(name, func(w io.Writer) error {
		gz, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
		if err != nil {
			return err
		}
		if err := body(gz); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	})
}

func (r *Repo) writeFile(name string, body func(io.Writer) error) error {
	f, err := r.options.ArtifactFS.Create(name)
	if err != nil {
		return WrapErrorf(err, "failed to create %s", name)
	}

	if err := body(f); err != nil {
		f.Close()
		return WrapErrorf(err, "failed to write %s", name)
	}
	return f.Close()
}
