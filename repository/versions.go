package repository

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/olavph/builds/config"
	"github.com/olavph/builds/errors"
	"github.com/olavph/builds/git"
)

// VersionFileName holds the release version. Its first line describes the
// file format, the second one is "<version>-<milestone>".
const VersionFileName = "VERSION"

// GetVersionsRepository returns the packages metadata repository used by
// subcommand, cloning it under the configured repositories directory when
// missing. Each subcommand keeps its own copy, named "versions_<subcommand>".
func (f *Factory) GetVersionsRepository(ctx context.Context, cfg *config.Config, subcommand string) (*git.Repo, error) {
	if cfg.VersionsRepo.URL == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "versions_repo.url is required")
	}

	repo, err := f.GetGitRepository(ctx, cfg.VersionsRepo.URL, cfg.RepositoriesPath(), "versions_"+subcommand)
	if err != nil {
		f.logger().ErrorContext(ctx, "failed to get versions repository", "url", cfg.VersionsRepo.URL, "error", err)
		return nil, err
	}
	return repo, nil
}

// SetupVersionsRepository gets the versions repository and checks out the
// configured branch with the configured refspecs.
func (f *Factory) SetupVersionsRepository(ctx context.Context, cfg *config.Config, subcommand string) (*git.Repo, error) {
	repo, err := f.GetVersionsRepository(ctx, cfg, subcommand)
	if err != nil {
		return nil, err
	}

	if err := repo.Checkout(ctx, cfg.VersionsRepo.Branch, cfg.VersionsRepo.RefSpecs...); err != nil {
		f.logger().ErrorContext(ctx, "failed to checkout versions repository",
			"branch", cfg.VersionsRepo.Branch, "error", err)
		return nil, err
	}
	return repo, nil
}

// ReadVersionAndMilestone returns the second line of the VERSION file in
// the versions repository worktree, e.g. "2.1-beta".
func (f *Factory) ReadVersionAndMilestone(repo *git.Repo) (string, error) {
	versionPath := filepath.Join(repo.Path(), VersionFileName)

	data, err := f.fs().ReadFile(versionPath)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeNotFound, "failed to read version file",
			map[string]interface{}{"path": versionPath})
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 0; scanner.Scan(); line++ {
		if line == 1 {
			return strings.TrimRight(scanner.Text(), "\r"), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to scan version file")
	}

	return "", nil
}
