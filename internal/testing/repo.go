// Package testing provides shared fixtures for GitVan tests.
package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gitvan/gitvan/git"
	"github.com/gitvan/gitvan/logger"
)

// CreateTestRepo initializes a real git repository under t.TempDir() with a
// single initial commit and returns the directory, a Runner, and the
// execution context pointing at it.
func CreateTestRepo(t *testing.T) (string, *git.Runner, git.Context) {
	t.Helper()

	dir := t.TempDir()
	runner := git.NewRunner(logger.Logger)
	ec := git.Context{Dir: dir}
	ctx := context.Background()

	require.NoError(t, runner.Init(ctx, ec))
	require.NoError(t, runner.ConfigSet(ctx, ec, "user.name", "gitvan-test"))
	require.NoError(t, runner.ConfigSet(ctx, ec, "user.email", "test@gitvan.local"))
	require.NoError(t, runner.ConfigSet(ctx, ec, "commit.gpgsign", "false"))

	WriteFile(t, dir, "README.md", "# test repo\n")
	require.NoError(t, runner.Add(ctx, ec, "README.md"))
	require.NoError(t, runner.Commit(ctx, ec, "initial commit"))

	return dir, runner, ec
}

// Commit writes the given file and commits it, returning the new HEAD sha.
func Commit(t *testing.T, runner *git.Runner, ec git.Context, relpath, content, message string) string {
	t.Helper()
	ctx := context.Background()

	WriteFile(t, ec.Dir, relpath, content)
	require.NoError(t, runner.Add(ctx, ec, relpath))
	require.NoError(t, runner.Commit(ctx, ec, message))

	head, err := runner.RevParse(ctx, ec, "HEAD")
	require.NoError(t, err)
	return head
}

// WaitForFile polls until dir/relpath exists or the deadline passes.
func WaitForFile(t *testing.T, dir, relpath string, timeout time.Duration) {
	t.Helper()
	path := filepath.Join(dir, relpath)
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, timeout, 50*time.Millisecond, "waiting for %s", relpath)
}

// WriteFile writes content to dir/relpath, creating parent directories.
func WriteFile(t *testing.T, dir, relpath, content string) {
	t.Helper()
	path := filepath.Join(dir, relpath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
