package git

import (
	"context"
	"errors"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
)

// ForceCreateRemote makes name point at remoteURL. An existing remote with a
// different URL is deleted and recreated; one with the same URL is left
// alone. Exactly one remote named name exists afterwards.
func (r *Repo) ForceCreateRemote(ctx context.Context, name, remoteURL string) error {
	if name == "" || remoteURL == "" {
		return WrapError(ErrInvalidRef, "remote name and URL are required")
	}

	remote, err := r.repo.Remote(name)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
	case err != nil:
		return WrapErrorf(err, "failed to read remote %q", name)
	default:
		urls := remote.Config().URLs
		if len(urls) == 1 && urls[0] == remoteURL {
			r.logger().DebugContext(ctx, "remote unchanged", "repo", r.Name(), "remote", name, "url", remoteURL)
			return nil
		}

		if err := r.repo.DeleteRemote(name); err != nil {
			return WrapErrorf(err, "failed to delete remote %q", name)
		}
		r.logger().DebugContext(ctx, "removed stale remote", "repo", r.Name(), "remote", name, "url", urls)
	}

	if _, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{remoteURL},
	}); err != nil {
		return WrapErrorf(err, "failed to create remote %q", name)
	}

	r.logger().DebugContext(ctx, "created remote", "repo", r.Name(), "remote", name, "url", remoteURL)
	return nil
}

// RemoteURL returns the first URL of the named remote.
func (r *Repo) RemoteURL(name string) (string, error) {
	remote, err := r.repo.Remote(name)
	if err != nil {
		return "", WrapErrorf(err, "failed to read remote %q", name)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", WrapErrorf(ErrInvalidRef, "remote %q has no URL", name)
	}
	return urls[0], nil
}

// RemoteNames lists remotes in the order they appear in the repository
// configuration. Remotes not yet written to the file follow, sorted by name.
func (r *Repo) RemoteNames() ([]string, error) {
	cfg, err := r.repo.Config()
	if err != nil {
		return nil, WrapError(err, "failed to read repository config")
	}

	names := make([]string, 0, len(cfg.Remotes))
	seen := make(map[string]bool, len(cfg.Remotes))

	if cfg.Raw != nil {
		for _, ss := range cfg.Raw.Section("remote").Subsections {
			if _, ok := cfg.Remotes[ss.Name]; ok && !seen[ss.Name] {
				names = append(names, ss.Name)
				seen[ss.Name] = true
			}
		}
	}

	var rest []string
	for name := range cfg.Remotes {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	return append(names, rest...), nil
}
