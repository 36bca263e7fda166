// Package config holds the explicit configuration value handed to the
// repository, svn and chroot packages, and loads it from CUE or YAML files.
package config

import (
	"net/url"
	"path/filepath"

	"github.com/olavph/builds/errors"
	"github.com/olavph/builds/git"
)

const (
	// DefaultMockBinary is the chroot builder used when none is configured.
	DefaultMockBinary = "/usr/bin/mock"

	// DefaultRepositoriesDir is the directory under WorkDir holding working copies.
	DefaultRepositoriesDir = "repositories"

	// DefaultVersionsBranch is checked out in the versions repository when
	// no branch is configured.
	DefaultVersionsBranch = "master"
)

// Config is the configuration shared by all build components.
type Config struct {
	// WorkDir is the REQUIRED base directory. Working copies live under
	// RepositoriesDir inside it and the chroot lock file sits at its root.
	WorkDir string `json:"work_dir" yaml:"work_dir" mapstructure:"work_dir"`

	// MockBinary is the chroot builder executable.
	MockBinary string `json:"mock_binary" yaml:"mock_binary" mapstructure:"mock_binary"`

	// MockArgs are passed to every builder invocation.
	MockArgs []string `json:"mock_args,omitempty" yaml:"mock_args" mapstructure:"mock_args"`

	// HTTPProxy is applied to clone, fetch and svn checkout.
	HTTPProxy string `json:"http_proxy,omitempty" yaml:"http_proxy" mapstructure:"http_proxy"`

	// RepositoriesDir is relative to WorkDir unless absolute.
	RepositoriesDir string `json:"repositories_dir,omitempty" yaml:"repositories_dir" mapstructure:"repositories_dir"`

	// ArchiveMode is "merge" (default) or "concatenate".
	ArchiveMode string `json:"archive_mode,omitempty" yaml:"archive_mode" mapstructure:"archive_mode"`

	// VersionsRepo locates the packages metadata repository.
	VersionsRepo VersionsRepo `json:"versions_repo,omitempty" yaml:"versions_repo" mapstructure:"versions_repo"`

	// Credentials authenticate git network operations.
	Credentials Credentials `json:"credentials,omitempty" yaml:"credentials" mapstructure:"credentials"`
}

// VersionsRepo describes the packages metadata git repository.
type VersionsRepo struct {
	URL      string   `json:"url,omitempty" yaml:"url" mapstructure:"url"`
	Branch   string   `json:"branch,omitempty" yaml:"branch" mapstructure:"branch"`
	RefSpecs []string `json:"refspecs,omitempty" yaml:"refspecs" mapstructure:"refspecs"`
}

// Credentials for git remotes. Secrets are usually injected through the
// environment rather than written to files. TokenSecret names an AWS
// Secrets Manager secret read when Token is empty.
type Credentials struct {
	Username         string   `json:"username,omitempty" yaml:"username" mapstructure:"username"`
	Token            string   `json:"token,omitempty" yaml:"token" mapstructure:"token"`
	TokenSecret      string   `json:"token_secret,omitempty" yaml:"token_secret" mapstructure:"token_secret"`
	SSHKeyPath       string   `json:"ssh_key_path,omitempty" yaml:"ssh_key_path" mapstructure:"ssh_key_path"`
	SSHKeyPassphrase string   `json:"ssh_key_passphrase,omitempty" yaml:"ssh_key_passphrase" mapstructure:"ssh_key_passphrase"`
	AllowedHosts     []string `json:"allowed_hosts,omitempty" yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
}

// Validate checks required fields and the proxy URL.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return errors.New(errors.CodeInvalidConfig, "work_dir is required")
	}

	if c.MockBinary == "" {
		return errors.New(errors.CodeInvalidConfig, "mock_binary is required")
	}

	if c.HTTPProxy != "" {
		u, err := url.Parse(c.HTTPProxy)
		if err != nil || u.Scheme == "" || u.Hostname() == "" {
			return errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid http_proxy",
				map[string]interface{}{"http_proxy": c.HTTPProxy})
		}
	}

	if _, err := git.ParseArchiveMode(c.ArchiveMode); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid archive_mode")
	}

	return nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.MockBinary == "" {
		c.MockBinary = DefaultMockBinary
	}

	if c.RepositoriesDir == "" {
		c.RepositoriesDir = DefaultRepositoriesDir
	}

	if c.VersionsRepo.Branch == "" {
		c.VersionsRepo.Branch = DefaultVersionsBranch
	}
}

// RepositoriesPath returns the directory holding working copies.
func (c *Config) RepositoriesPath() string {
	if filepath.IsAbs(c.RepositoriesDir) {
		return c.RepositoriesDir
	}
	return filepath.Join(c.WorkDir, c.RepositoriesDir)
}

// LockFilePath returns the chroot initialization lock file.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.WorkDir, "mock.lock")
}

// GitArchiveMode returns the parsed ArchiveMode. Validate reports bad values.
func (c *Config) GitArchiveMode() git.ArchiveMode {
	mode, _ := git.ParseArchiveMode(c.ArchiveMode)
	return mode
}
