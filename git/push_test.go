package git

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	builderrors "github.com/olavph/builds/errors"
	"github.com/olavph/builds/internal/gittest"
)

var bot = Signature{Name: "Build Bot", Email: "bot@example.com"}

func TestPushHeadCommits(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "one"})
	tc := cloneOrigin(t, origin, "example")

	target := gittest.NewOrigin(t, "target")
	target.Commit(t, "unrelated", map[string]string{"x": "y"})

	tc.writeFile(t, "README.md", "two")
	hash, err := tc.repo.CommitChanges(tc.ctx, "bump", bot)
	require.NoError(t, err)

	result, err := tc.repo.PushHeadCommits(tc.ctx, target.URL(), "feature")
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/feature", result.RemoteRef)
	assert.Equal(t, PushFlagUpdated, result.Flags)
	assert.False(t, result.Failed())
	assert.Equal(t, hash, target.Ref(t, plumbing.NewBranchReferenceName("feature")))

	// the main remote is untouched by push targets
	url, err := tc.repo.RemoteURL(DefaultRemoteName)
	require.NoError(t, err)
	assert.Equal(t, origin.URL(), url)

	url, err = tc.repo.RemoteURL(PushRemoteName)
	require.NoError(t, err)
	assert.Equal(t, target.URL(), url)

	result, err = tc.repo.PushHeadCommits(tc.ctx, target.URL(), "feature")
	require.NoError(t, err)
	assert.Equal(t, PushFlagUpToDate, result.Flags)
}

func TestPushHeadCommits_NonFastForward(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "one"})
	tc := cloneOrigin(t, origin, "example")

	upstream := origin.Commit(t, "upstream moved", map[string]string{"README.md": "upstream"})

	tc.writeFile(t, "README.md", "local")
	_, err := tc.repo.CommitChanges(tc.ctx, "local change", bot)
	require.NoError(t, err)

	result, err := tc.repo.PushHeadCommits(tc.ctx, origin.URL(), "master")
	require.Error(t, err)

	var pushErr *PushError
	require.True(t, errors.As(err, &pushErr))
	assert.Equal(t, "refs/heads/master", pushErr.RemoteRef)
	assert.True(t, result.Failed())
	assert.True(t, builderrors.HasCode(err, builderrors.CodePushRejected))
	assert.ErrorIs(t, err, ErrNotFastForward)
	assert.Equal(t, "rejected|error", result.Flags.String())

	assert.Equal(t, upstream, origin.Ref(t, plumbing.NewBranchReferenceName("master")), "remote must not move")
}

func TestPushHeadCommits_InjectedOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		push     pushFunc
		validate func(t *testing.T, result PushResult, err error)
	}{
		{
			name: "error flag without transport error",
			push: func(_ context.Context, ref plumbing.ReferenceName, _ *git.PushOptions) (PushResult, error) {
				return PushResult{RemoteRef: ref.String(), Flags: PushFlagRemoteRejected | PushFlagError, Summary: "hook declined"}, nil
			},
			validate: func(t *testing.T, result PushResult, err error) {
				var pushErr *PushError
				require.True(t, errors.As(err, &pushErr))
				assert.Equal(t, "refs/heads/release", pushErr.RemoteRef)
				assert.Contains(t, err.Error(), "hook declined")
				assert.Equal(t, "remote-rejected|error", result.Flags.String())
				assert.NotErrorIs(t, err, ErrNotFastForward)
			},
		},
		{
			name: "rejected without error bit is accepted",
			push: func(_ context.Context, ref plumbing.ReferenceName, _ *git.PushOptions) (PushResult, error) {
				return PushResult{RemoteRef: ref.String(), Flags: PushFlagUpToDate}, nil
			},
			validate: func(t *testing.T, result PushResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, PushFlagUpToDate, result.Flags)
			},
		},
		{
			name: "transport failure with error bit is a push error",
			push: func(_ context.Context, ref plumbing.ReferenceName, _ *git.PushOptions) (PushResult, error) {
				return PushResult{RemoteRef: ref.String(), Flags: PushFlagError}, transport.ErrRepositoryNotFound
			},
			validate: func(t *testing.T, result PushResult, err error) {
				require.Error(t, err)
				var pushErr *PushError
				require.True(t, errors.As(err, &pushErr))
				assert.Equal(t, "refs/heads/release", pushErr.RemoteRef)
				assert.True(t, result.Failed())
				assert.True(t, builderrors.HasCode(err, builderrors.CodePushRejected))
				assert.ErrorIs(t, err, transport.ErrRepositoryNotFound)
			},
		},
		{
			name: "transport failure without a result is a repository error",
			push: func(_ context.Context, _ plumbing.ReferenceName, _ *git.PushOptions) (PushResult, error) {
				return PushResult{}, transport.ErrRepositoryNotFound
			},
			validate: func(t *testing.T, _ PushResult, err error) {
				require.Error(t, err)
				var pushErr *PushError
				assert.False(t, errors.As(err, &pushErr))
				assert.True(t, builderrors.HasCode(err, builderrors.CodeRepository))
				assert.ErrorIs(t, err, transport.ErrRepositoryNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := gittest.NewOrigin(t, "example")
			origin.Commit(t, "initial", map[string]string{"README.md": "one"})
			tc := cloneOrigin(t, origin, "example")
			tc.repo.push = tt.push

			result, err := tc.repo.PushHeadCommits(tc.ctx, "https://push.example.com/example.git", "release")
			tt.validate(t, result, err)
		})
	}
}

func TestPushHeadCommits_UnreachableRemote(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "one"})
	tc := cloneOrigin(t, origin, "example")

	result, err := tc.repo.PushHeadCommits(tc.ctx, origin.URL()+"-missing", "release")
	require.Error(t, err)

	var pushErr *PushError
	require.True(t, errors.As(err, &pushErr))
	assert.Equal(t, "refs/heads/release", pushErr.RemoteRef)
	assert.True(t, result.Failed())
	assert.ErrorIs(t, err, transport.ErrRepositoryNotFound)
}

func TestPushHeadCommits_AuthFailure(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "one"})
	tc := cloneOrigin(t, origin, "example")
	tc.repo.options.Auth = failingAuth{}

	_, err := tc.repo.PushHeadCommits(tc.ctx, origin.URL(), "release")
	require.Error(t, err)
	assert.True(t, builderrors.HasCode(err, builderrors.CodeRepository))
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestPushHeadCommits_InvalidBranch(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "one"})
	tc := cloneOrigin(t, origin, "example")

	_, err := tc.repo.PushHeadCommits(tc.ctx, origin.URL(), "")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestPushFlag_String(t *testing.T) {
	assert.Equal(t, "none", PushFlag(0).String())
	assert.Equal(t, "updated", PushFlagUpdated.String())
	assert.Equal(t, "rejected|error", (PushFlagRejected | PushFlagError).String())
}

func TestIsTransportError(t *testing.T) {
	assert.True(t, isTransportError(transport.ErrAuthenticationRequired))
	assert.True(t, isTransportError(WrapError(git.ErrRemoteNotFound, "x")))
	assert.False(t, isTransportError(errors.New("command error on refs/heads/x: hook declined")))
}
