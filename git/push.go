package git

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	builderrors "github.com/olavph/builds/errors"
)

// PushFlag describes the outcome of updating one remote reference.
type PushFlag uint8

const (
	// PushFlagUpdated means the remote reference now points at the pushed commit.
	PushFlagUpdated PushFlag = 1 << iota

	// PushFlagUpToDate means the remote reference already matched.
	PushFlagUpToDate

	// PushFlagRejected means the update was refused as a non-fast-forward.
	PushFlagRejected

	// PushFlagRemoteRejected means the remote refused the update.
	PushFlagRemoteRejected

	// PushFlagError is set on every failed update.
	PushFlagError
)

var pushFlagNames = []struct {
	flag PushFlag
	name string
}{
	{PushFlagUpdated, "updated"},
	{PushFlagUpToDate, "up-to-date"},
	{PushFlagRejected, "rejected"},
	{PushFlagRemoteRejected, "remote-rejected"},
	{PushFlagError, "error"},
}

// String returns the set flags joined by "|".
func (f PushFlag) String() string {
	var names []string
	for _, n := range pushFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// PushResult is the outcome of pushing to one remote reference.
type PushResult struct {
	// RemoteRef is the full name of the updated reference, e.g. refs/heads/main.
	RemoteRef string

	// Flags holds the outcome bits.
	Flags PushFlag

	// Summary is a human-readable description of the outcome.
	Summary string
}

// Failed reports whether the error bit is set.
func (p PushResult) Failed() bool {
	return p.Flags&PushFlagError != 0
}

// PushError reports a push whose result carries the error flag.
type PushError struct {
	// RemoteRef is the reference that could not be updated.
	RemoteRef string

	// Result is the full push result.
	Result PushResult

	err error
}

// Error implements the error interface.
func (e *PushError) Error() string {
	return fmt.Sprintf("push to %s failed (%s): %s", e.RemoteRef, e.Result.Flags, e.Result.Summary)
}

// Unwrap returns the CodePushRejected error describing the failure.
func (e *PushError) Unwrap() error {
	return e.err
}

func newPushError(result PushResult, cause error) *PushError {
	return &PushError{
		RemoteRef: result.RemoteRef,
		Result:    result,
		err: builderrors.WrapWithContext(cause, builderrors.CodePushRejected, "push rejected",
			map[string]interface{}{"remote_ref": result.RemoteRef, "flags": result.Flags.String()}),
	}
}

// pushFunc performs one push and classifies the outcome. Transport-level
// failures are returned as errors alongside a result carrying the error
// flag; rejections are reported in the result only.
type pushFunc func(ctx context.Context, remoteRef plumbing.ReferenceName, opts *git.PushOptions) (PushResult, error)

// PushHeadCommits pushes HEAD to refs/heads/<remoteBranch> at remoteURL
// through the PushRemoteName remote, leaving the main remote untouched.
// A result with the error flag yields a *PushError whether or not the
// transport itself failed; the transport error stays reachable through
// errors.Is.
func (r *Repo) PushHeadCommits(ctx context.Context, remoteURL, remoteBranch string) (PushResult, error) {
	ctx, span := tracer.Start(ctx, "Repo::PushHeadCommits", trace.WithAttributes(
		attribute.String("repo", r.Name()),
		attribute.String("url", remoteURL),
		attribute.String("branch", remoteBranch),
	))
	defer span.End()

	if remoteBranch == "" {
		return PushResult{}, fail(span, WrapError(ErrInvalidRef, "remote branch cannot be empty"))
	}

	remoteRef := plumbing.NewBranchReferenceName(remoteBranch)
	if err := r.ForceCreateRemote(ctx, PushRemoteName, remoteURL); err != nil {
		return PushResult{}, fail(span, err)
	}

	head, err := r.Head()
	if err != nil {
		return PushResult{}, fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "push failed"))
	}

	auth, err := r.auth(remoteURL)
	if err != nil {
		return PushResult{}, fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "push failed",
			"url", remoteURL))
	}

	spec := config.RefSpec(fmt.Sprintf("%s:%s", head, remoteRef))
	if err := spec.Validate(); err != nil {
		return PushResult{}, fail(span, WrapErrorf(ErrInvalidRef, "invalid branch %q: %v", remoteBranch, err))
	}
	r.logger().InfoContext(ctx, "pushing", "repo", r.Name(), "remote", PushRemoteName, "refspec", string(spec))

	result, err := r.push(ctx, remoteRef, &git.PushOptions{
		RemoteName:   PushRemoteName,
		RefSpecs:     []config.RefSpec{spec},
		Auth:         auth,
		ProxyOptions: r.proxy(),
	})
	if result.Failed() {
		cause := err
		switch {
		case cause != nil:
		case result.Flags&PushFlagRejected != 0:
			cause = WrapError(ErrNotFastForward, result.Summary)
		default:
			cause = errors.New(result.Summary)
		}
		r.logger().ErrorContext(ctx, "push rejected", "repo", r.Name(), "remote_ref", result.RemoteRef,
			"flags", result.Flags.String(), "summary", result.Summary)
		return result, fail(span, newPushError(result, cause))
	}

	if err != nil {
		return result, fail(span, r.repoError(ctx, err, builderrors.CodeRepository, "push failed",
			"url", remoteURL, "remote_ref", remoteRef.String()))
	}

	r.logger().InfoContext(ctx, "pushed", "repo", r.Name(), "remote_ref", result.RemoteRef, "flags", result.Flags.String())
	return result, nil
}

// pushRemote is the pushFunc backed by go-git.
func (r *Repo) pushRemote(ctx context.Context, remoteRef plumbing.ReferenceName, opts *git.PushOptions) (PushResult, error) {
	result := PushResult{RemoteRef: remoteRef.String()}

	err := r.repo.PushContext(ctx, opts)
	switch {
	case err == nil:
		result.Flags = PushFlagUpdated
		result.Summary = string(opts.RefSpecs[0])
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		result.Flags = PushFlagUpToDate
		result.Summary = "up to date"
	case isTransportError(err):
		result.Flags = PushFlagError
		result.Summary = err.Error()
		return result, err
	case isNonFastForward(err):
		result.Flags = PushFlagRejected | PushFlagError
		result.Summary = err.Error()
	default:
		result.Flags = PushFlagRemoteRejected | PushFlagError
		result.Summary = err.Error()
	}

	return result, nil
}

func isNonFastForward(err error) bool {
	return errors.Is(err, git.ErrNonFastForwardUpdate) ||
		errors.Is(err, git.ErrForceNeeded) ||
		strings.Contains(err.Error(), "non-fast-forward")
}

// isTransportError reports failures to reach or authenticate against the
// remote, as opposed to the remote refusing the update.
func isTransportError(err error) bool {
	for _, target := range []error{
		transport.ErrRepositoryNotFound,
		transport.ErrAuthenticationRequired,
		transport.ErrAuthorizationFailed,
		transport.ErrInvalidAuthMethod,
		git.ErrRemoteNotFound,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr)
}
