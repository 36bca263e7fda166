// Package auth resolves go-git authentication methods per remote URL from
// static credentials.
package auth

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// Credentials are the secrets available to git operations.
type Credentials struct {
	// Username for HTTPS basic auth. Defaults to "token" when only Token is set.
	Username string

	// Token is the HTTPS password or access token.
	Token string

	// SSHKeyPath is a private key file used for ssh:// and scp-style URLs.
	SSHKeyPath string

	// SSHKeyPassphrase decrypts SSHKeyPath.
	SSHKeyPassphrase string

	// SSHUser is the SSH login name. Defaults to "git".
	SSHUser string

	// AllowedHosts restricts credentials to matching hosts. Patterns may
	// start with "*." or end with ".*". Empty allows every host.
	AllowedHosts []string
}

// Empty reports whether no secret is configured.
func (c Credentials) Empty() bool {
	return c.Token == "" && c.SSHKeyPath == ""
}

// Provider hands out credentials by URL scheme and host.
// It satisfies git.AuthProvider.
type Provider struct {
	creds Credentials
}

// New returns a Provider for creds.
func New(creds Credentials) *Provider {
	if creds.Token != "" && creds.Username == "" {
		creds.Username = "token"
	}
	if creds.SSHUser == "" {
		creds.SSHUser = "git"
	}
	return &Provider{creds: creds}
}

// Method returns the auth method for remoteURL, or nil when the URL needs
// none (file:// and hosts outside AllowedHosts) or no matching secret is
// configured.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *Provider) Method(remoteURL string) (transport.AuthMethod, error) {
	host, scheme, err := splitURL(remoteURL)
	if err != nil {
		return nil, err
	}

	if len(p.creds.AllowedHosts) > 0 && !p.isHostAllowed(host) {
		return nil, nil
	}

	switch scheme {
	case "https", "http":
		if p.creds.Token == "" {
			return nil, nil
		}
		return &http.BasicAuth{Username: p.creds.Username, Password: p.creds.Token}, nil
	case "ssh", "git+ssh":
		if p.creds.SSHKeyPath == "" {
			return nil, nil
		}
		if _, err := os.Stat(p.creds.SSHKeyPath); err != nil {
			return nil, fmt.Errorf("SSH private key %s: %w", p.creds.SSHKeyPath, err)
		}
		keys, err := ssh.NewPublicKeysFromFile(p.creds.SSHUser, p.creds.SSHKeyPath, p.creds.SSHKeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from file: %w", err)
		}
		return keys, nil
	default:
		return nil, nil
	}
}

// splitURL returns host and scheme, treating user@host:path as ssh.
func splitURL(remoteURL string) (string, string, error) {
	if !strings.Contains(remoteURL, "://") {
		if at := strings.Index(remoteURL, "@"); at >= 0 {
			rest := remoteURL[at+1:]
			if colon := strings.Index(rest, ":"); colon > 0 {
				return rest[:colon], "ssh", nil
			}
		}
		return "", "file", nil
	}

	parsed, err := url.Parse(remoteURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	return parsed.Hostname(), parsed.Scheme, nil
}

func (p *Provider) isHostAllowed(host string) bool {
	for _, pattern := range p.creds.AllowedHosts {
		if matchesPattern(host, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks if a host matches a pattern with one "*" wildcard.
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}

	if strings.Count(pattern, "*") != 1 {
		return false
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suffix) || host == suffix
	}

	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(host, prefix+".")
	}

	return false
}
