package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSiteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func startWatcher(t *testing.T, dir string, rebuilds chan []string) {
	t.Helper()
	w, err := New(Options{
		SiteDir:  dir,
		Debounce: 20 * time.Millisecond,
		Ignore:   []string{"public"},
		Rebuild: func(_ context.Context, changed []string) error {
			rebuilds <- changed
			return nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the event loop a moment to attach before mutating the tree.
	time.Sleep(50 * time.Millisecond)
}

func TestWatcher_RebuildsAfterContentChange(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "content/hello.md", "hi")
	rebuilds := make(chan []string, 8)
	startWatcher(t, dir, rebuilds)

	writeSiteFile(t, dir, "content/hello.md", "hi again")

	select {
	case changed := <-rebuilds:
		require.Contains(t, changed, "content/hello.md")
	case <-time.After(3 * time.Second):
		t.Fatal("no rebuild after content change")
	}
}

func TestWatcher_CoalescesEventBursts(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "content/a.md", "a")
	rebuilds := make(chan []string, 8)
	startWatcher(t, dir, rebuilds)

	for i := 0; i < 5; i++ {
		writeSiteFile(t, dir, "content/a.md", strings.Repeat("x", i+1))
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case changed := <-rebuilds:
		require.Equal(t, []string{"content/a.md"}, changed)
	case <-time.After(3 * time.Second):
		t.Fatal("no rebuild after burst")
	}
	select {
	case extra := <-rebuilds:
		t.Fatalf("burst was not coalesced, extra rebuild for %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOutputAndHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "content/a.md", "a")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "public"), 0o755))
	rebuilds := make(chan []string, 8)
	startWatcher(t, dir, rebuilds)

	writeSiteFile(t, dir, "public/index.html", "out")
	writeSiteFile(t, dir, "content/.draft.swp", "tmp")
	writeSiteFile(t, dir, "README.md", "root file")

	select {
	case changed := <-rebuilds:
		t.Fatalf("unexpected rebuild for %v", changed)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_ConfigChangeTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	rebuilds := make(chan []string, 8)
	startWatcher(t, dir, rebuilds)

	writeSiteFile(t, dir, "site.yaml", "title: New")

	select {
	case changed := <-rebuilds:
		require.Contains(t, changed, "site.yaml")
	case <-time.After(3 * time.Second):
		t.Fatal("no rebuild after config change")
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	writeSiteFile(t, dir, "content/a.md", "a")
	rebuilds := make(chan []string, 8)
	startWatcher(t, dir, rebuilds)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "content", "posts"), 0o755))
	time.Sleep(100 * time.Millisecond)
	writeSiteFile(t, dir, "content/posts/new.md", "post")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case changed := <-rebuilds:
			for _, p := range changed {
				if p == "content/posts/new.md" {
					return
				}
			}
		case <-deadline:
			t.Fatal("new directory contents never triggered a rebuild")
		}
	}
}
