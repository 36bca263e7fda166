package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olavph/builds/internal/gittest"
)

func TestForceCreateRemote(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, tc *testClone)
		remote   string
		url      string
		validate func(t *testing.T, tc *testClone)
	}{
		{
			name:   "creates missing remote",
			remote: "mirror",
			url:    "https://mirror.example.com/example.git",
			validate: func(t *testing.T, tc *testClone) {
				names, err := tc.repo.RemoteNames()
				require.NoError(t, err)
				assert.Equal(t, []string{DefaultRemoteName, "mirror"}, names)
			},
		},
		{
			name: "same url is a no-op",
			setup: func(t *testing.T, tc *testClone) {
				require.NoError(t, tc.repo.ForceCreateRemote(tc.ctx, "mirror", "https://mirror.example.com/a.git"))
			},
			remote: "mirror",
			url:    "https://mirror.example.com/a.git",
			validate: func(t *testing.T, tc *testClone) {
				names, err := tc.repo.RemoteNames()
				require.NoError(t, err)
				assert.Len(t, names, 2)

				url, err := tc.repo.RemoteURL("mirror")
				require.NoError(t, err)
				assert.Equal(t, "https://mirror.example.com/a.git", url)
			},
		},
		{
			name: "different url replaces remote",
			setup: func(t *testing.T, tc *testClone) {
				require.NoError(t, tc.repo.ForceCreateRemote(tc.ctx, "mirror", "https://old.example.com/a.git"))
			},
			remote: "mirror",
			url:    "https://new.example.com/a.git",
			validate: func(t *testing.T, tc *testClone) {
				names, err := tc.repo.RemoteNames()
				require.NoError(t, err)
				assert.Len(t, names, 2)

				url, err := tc.repo.RemoteURL("mirror")
				require.NoError(t, err)
				assert.Equal(t, "https://new.example.com/a.git", url)
			},
		},
		{
			name:   "main remote can be repointed",
			remote: DefaultRemoteName,
			url:    "https://moved.example.com/example.git",
			validate: func(t *testing.T, tc *testClone) {
				url, err := tc.repo.RemoteURL(DefaultRemoteName)
				require.NoError(t, err)
				assert.Equal(t, "https://moved.example.com/example.git", url)

				names, err := tc.repo.RemoteNames()
				require.NoError(t, err)
				assert.Equal(t, []string{DefaultRemoteName}, names)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin := gittest.NewOrigin(t, "example")
			origin.Commit(t, "initial", map[string]string{"README.md": "hello"})
			tc := cloneOrigin(t, origin, "example")

			if tt.setup != nil {
				tt.setup(t, tc)
			}

			require.NoError(t, tc.repo.ForceCreateRemote(tc.ctx, tt.remote, tt.url))
			tt.validate(t, tc)
		})
	}
}

func TestForceCreateRemote_Idempotent(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "hello"})
	tc := cloneOrigin(t, origin, "example")

	for i := 0; i < 2; i++ {
		require.NoError(t, tc.repo.ForceCreateRemote(tc.ctx, "mirror", "https://mirror.example.com/a.git"))
	}

	names, err := tc.repo.RemoteNames()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultRemoteName, "mirror"}, names)
}

func TestForceCreateRemote_InvalidInput(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "hello"})
	tc := cloneOrigin(t, origin, "example")

	assert.ErrorIs(t, tc.repo.ForceCreateRemote(tc.ctx, "", "https://x"), ErrInvalidRef)
	assert.ErrorIs(t, tc.repo.ForceCreateRemote(tc.ctx, "x", ""), ErrInvalidRef)
}

func TestRemoteNames_ConfigOrder(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "hello"})
	tc := cloneOrigin(t, origin, "example")

	require.NoError(t, tc.repo.ForceCreateRemote(tc.ctx, "zeta", "https://zeta.example.com/a.git"))
	require.NoError(t, tc.repo.ForceCreateRemote(tc.ctx, "alpha", "https://alpha.example.com/a.git"))

	names, err := tc.repo.RemoteNames()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultRemoteName, "zeta", "alpha"}, names)
}

func TestRemoteURL_Missing(t *testing.T) {
	origin := gittest.NewOrigin(t, "example")
	origin.Commit(t, "initial", map[string]string{"README.md": "hello"})
	tc := cloneOrigin(t, origin, "example")

	_, err := tc.repo.RemoteURL("nope")
	require.Error(t, err)
}
