package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserve_SecondClaimCollides(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.Reserve("docs/index.html", "content/docs.md"))

	err := w.Reserve("docs/index.html", "content/docs/index.md")
	require.ErrorIs(t, err, ErrCollision)

	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "docs/index.html", ce.Dest)
	require.Equal(t, "content/docs.md", ce.First)
	require.Equal(t, "content/docs/index.md", ce.Next)
}

func TestReserve_NormalizesBeforeComparing(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.Reserve("a/b/index.html", "one"))
	require.ErrorIs(t, w.Reserve("a/./b/index.html", "two"), ErrCollision)
}

func TestReserve_RejectsEscapingPaths(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.Error(t, w.Reserve("../outside.html", "x"))
	require.Error(t, w.Reserve("/etc/passwd", "x"))
	require.Error(t, w.Reserve("", "x"))
	require.Error(t, w.Reserve("a/../..", "x"))
}

func TestWrite_RequiresReservation(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.Write("index.html", []byte("hi"))
	require.ErrorIs(t, err, ErrUnreserved)
}

func TestWrite_CreatesDirsAndWritesAtomically(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)
	require.NoError(t, w.Reserve("posts/hello/index.html", "content/posts/hello.md"))

	wrote, err := w.Write("posts/hello/index.html", []byte("<p>hi</p>"))
	require.NoError(t, err)
	require.True(t, wrote)

	data, err := os.ReadFile(filepath.Join(root, "posts", "hello", "index.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>hi</p>", string(data))

	// No temp file left behind.
	entries, err := os.ReadDir(filepath.Join(root, "posts", "hello"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWrite_SkipsIdenticalContent(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)
	require.NoError(t, w.Reserve("style.css", "assets/style.scss"))

	wrote, err := w.Write("style.css", []byte("body{}"))
	require.NoError(t, err)
	require.True(t, wrote)

	abs := filepath.Join(root, "style.css")
	before, err := os.Stat(abs)
	require.NoError(t, err)

	wrote, err = w.Write("style.css", []byte("body{}"))
	require.NoError(t, err)
	require.False(t, wrote)

	after, err := os.Stat(abs)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())
}

func TestWrite_ReplacesChangedContent(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)
	require.NoError(t, w.Reserve("style.css", "assets/style.scss"))

	_, err := w.Write("style.css", []byte("body{}"))
	require.NoError(t, err)

	wrote, err := w.Write("style.css", []byte("main{}"))
	require.NoError(t, err)
	require.True(t, wrote)

	data, err := os.ReadFile(filepath.Join(root, "style.css"))
	require.NoError(t, err)
	require.Equal(t, "main{}", string(data))
}

func TestDestinations_SortedListing(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.Reserve("b.html", "b"))
	require.NoError(t, w.Reserve("a.html", "a"))
	require.Equal(t, []string{"a.html", "b.html"}, w.Destinations())

	owner, ok := w.Reserved("a.html")
	require.True(t, ok)
	require.Equal(t, "a", owner)
}
