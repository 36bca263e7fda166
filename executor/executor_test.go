package executor_test

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olavph/builds/errors"
	"github.com/olavph/builds/executor"
)

func requireProgram(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestBasicExecution(t *testing.T) {
	requireProgram(t, "echo")

	result, err := executor.New("echo").Execute(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)

	assert.Contains(t, result.Stdout, "hello world")
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "echo", executor.New("echo").Program())
}

func TestExecutionFailure(t *testing.T) {
	requireProgram(t, "sh")

	result, err := executor.New("sh").Execute(context.Background(), []string{"-c", "echo boom >&2; exit 3"})
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Stderr, "boom")
	assert.True(t, errors.HasCode(err, errors.CodeExecutionFailed))
}

func TestMissingProgram(t *testing.T) {
	result, err := executor.New("definitely-not-a-real-binary-xyz").Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, -1, result.ExitCode)
	assert.True(t, errors.HasCode(err, errors.CodeExecutionFailed))
}

func TestCombinedOutput(t *testing.T) {
	requireProgram(t, "sh")

	result, err := executor.New("sh").Execute(
		context.Background(),
		[]string{"-c", "echo out; echo err >&2"},
		executor.WithCapture(false, false, true),
	)
	require.NoError(t, err)

	assert.Contains(t, result.Combined, "out")
	assert.Contains(t, result.Combined, "err")
	assert.Empty(t, result.Stdout)
}

func TestWorkingDirectory(t *testing.T) {
	requireProgram(t, "pwd")

	dir := t.TempDir()
	result, err := executor.New("pwd").Execute(context.Background(), nil, executor.WithWorkingDir(dir))
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
}

func TestEnvironmentVariables(t *testing.T) {
	requireProgram(t, "sh")

	base := executor.New("sh", executor.WithEnvVar("BASE_VAR", "base"))
	result, err := base.Execute(
		context.Background(),
		[]string{"-c", "echo $BASE_VAR-$CALL_VAR"},
		executor.WithEnv(map[string]string{"CALL_VAR": "call"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "base-call", strings.TrimSpace(result.Stdout))

	// per-call env must not leak into the base options
	result, err = base.Execute(context.Background(), []string{"-c", "echo \"[$CALL_VAR]\""})
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(result.Stdout))
}

func TestStdoutWriter(t *testing.T) {
	requireProgram(t, "echo")

	var buf bytes.Buffer
	_, err := executor.New("echo").Execute(context.Background(), []string{"tee"}, executor.WithStdoutWriter(&buf))
	require.NoError(t, err)
	assert.Equal(t, "tee\n", buf.String())
}

func TestStderrWriter(t *testing.T) {
	requireProgram(t, "sh")

	var buf bytes.Buffer
	result, err := executor.New("sh").Execute(context.Background(), []string{"-c", "echo warn >&2"},
		executor.WithStderrWriter(&buf))
	require.NoError(t, err)
	assert.Equal(t, "warn\n", buf.String())
	assert.Equal(t, "warn\n", result.Stderr, "streaming must not replace capture")
}

func TestContextCancellation(t *testing.T) {
	requireProgram(t, "sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := executor.New("sleep").Execute(ctx, []string{"5"})
	require.Error(t, err)
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name     string
		program  string
		args     []string
		expected string
	}{
		{
			name:     "plain arguments",
			program:  "svn",
			args:     []string{"checkout", "https://host/repo", "/work/repo"},
			expected: "svn checkout https://host/repo /work/repo",
		},
		{
			name:     "quoted arguments",
			program:  "mock",
			args:     []string{"--scrub", "all", "a b", ""},
			expected: `mock --scrub all "a b" ""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, executor.CommandLine(tt.program, tt.args))
		})
	}
}
