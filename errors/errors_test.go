package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      New(CodeRepository, "clone failed"),
			expected: "clone failed",
		},
		{
			name: "context is sorted",
			err: WrapWithContext(nil, CodeRepositoryFormat, "invalid repository", map[string]interface{}{
				"path": "/work/example",
				"kind": "git",
			}),
			expected: "invalid repository (kind=git, path=/work/example)",
		},
		{
			name:     "cause is appended",
			err:      Wrap(io.EOF, CodeRepository, "fetch failed"),
			expected: "fetch failed: EOF",
		},
		{
			name:     "formatted message",
			err:      Newf(CodeRepository, "reference %q not found", "v1"),
			expected: `reference "v1" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := Wrap(io.ErrUnexpectedEOF, CodeRepository, "fetch failed")
	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))

	wrapped := fmt.Errorf("outer: %w", err)
	var target *Error
	require.True(t, As(wrapped, &target))
	assert.Equal(t, CodeRepository, target.Code)
}

func TestError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodePushRejected, "rejected"))

	assert.True(t, Is(err, New(CodePushRejected, "")))
	assert.False(t, Is(err, New(CodeRepository, "")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeUnknown, GetCode(io.EOF))
	assert.Equal(t, CodeUnknown, GetCode(nil))
	assert.Equal(t, CodeRepositoryFormat, GetCode(New(CodeRepositoryFormat, "bad")))
}

func TestHasCode(t *testing.T) {
	inner := New(CodeExecutionFailed, "svn failed")
	outer := Wrap(inner, CodeRepository, "checkout failed")

	assert.True(t, HasCode(outer, CodeRepository))
	assert.True(t, HasCode(outer, CodeExecutionFailed))
	assert.False(t, HasCode(outer, CodePushRejected))
	assert.False(t, HasCode(io.EOF, CodeRepository))
}

func TestError_WithContext(t *testing.T) {
	err := New(CodeRepository, "failed").WithContext("repo", "example")
	assert.Equal(t, "example", err.Context["repo"])
	assert.Equal(t, "failed (repo=example)", err.Error())
}
