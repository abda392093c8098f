package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) string {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	_, err = wt.Add(name)
	require.NoError(t, err)
	hash, err := wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestDetect_ReturnsHeadAndCleanState(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	want := commitFile(t, repo, dir, "a.txt", "A")

	info, ok := Detect(dir)
	require.True(t, ok)
	require.Equal(t, want, info.Revision)
	require.False(t, info.Dirty)
}

func TestDetect_FlagsUncommittedChanges(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFile(t, repo, dir, "a.txt", "A")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("B"), 0o600))

	info, ok := Detect(dir)
	require.True(t, ok)
	require.True(t, info.Dirty)
}

func TestDetect_FindsRepoFromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	want := commitFile(t, repo, dir, "a.txt", "A")
	sub := filepath.Join(dir, "site", "content")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	info, ok := Detect(sub)
	require.True(t, ok)
	require.Equal(t, want, info.Revision)
}

func TestDetect_OutsideRepositoryReportsNotOK(t *testing.T) {
	_, ok := Detect(t.TempDir())
	require.False(t, ok)
}
