package source

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"tern/internal/intern"
)

func defaultParallelism() int { return runtime.GOMAXPROCS(0) }

// Walker traverses a site root in parallel and produces classified
// Entries. Traversal order is unspecified; the resulting set is
// deterministic for a fixed filesystem state.
type Walker struct {
	Root     string
	Interner *intern.Interner
	// Parallelism bounds concurrent directory reads. Zero means one
	// worker per CPU as decided by the runtime.
	Parallelism int
	// Skip lists top-level directory names to ignore, e.g. the output
	// directory when it lives inside the site root.
	Skip []string
}

// Walk runs the traversal to completion and returns all entries sorted
// by path. Failed reads appear as entries with Err set; only a missing
// or unreadable root is returned as an error.
func (w *Walker) Walk(ctx context.Context) ([]Entry, error) {
	if _, err := os.Stat(w.Root); err != nil {
		return nil, &IOError{Path: w.Root, Op: "stat", Err: err}
	}
	var entries []Entry
	for e := range w.Stream(ctx) {
		entries = append(entries, e)
	}
	if err := ctx.Err(); err != nil {
		return entries, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Stream starts the traversal and returns a channel of entries. The
// channel is safe to drain from multiple goroutines and is closed when
// the walk finishes or the context is canceled.
func (w *Walker) Stream(ctx context.Context) <-chan Entry {
	out := make(chan Entry, 64)
	go func() {
		defer close(out)
		g := new(errgroup.Group)
		lim := w.Parallelism
		if lim <= 0 {
			lim = defaultParallelism()
		}
		g.SetLimit(lim)
		w.walkDir(ctx, g, "", out)
		_ = g.Wait()
	}()
	return out
}

func (w *Walker) walkDir(ctx context.Context, g *errgroup.Group, rel string, out chan<- Entry) {
	if ctx.Err() != nil {
		return
	}
	abs := filepath.Join(w.Root, filepath.FromSlash(rel))
	dirents, err := os.ReadDir(abs)
	if err != nil {
		w.emit(ctx, out, Entry{Path: rel, Err: &IOError{Path: rel, Op: "readdir", Err: err}})
		return
	}
	for _, d := range dirents {
		name := d.Name()
		child := name
		if rel != "" {
			child = path.Join(rel, name)
		}
		switch {
		case d.IsDir():
			if w.skipDir(child) {
				continue
			}
			sub := child
			// TryGo falls back to walking inline so a full worker pool
			// never deadlocks on recursive spawns.
			if !g.TryGo(func() error { w.walkDir(ctx, g, sub, out); return nil }) {
				w.walkDir(ctx, g, sub, out)
			}
		case d.Type()&fs.ModeSymlink != 0:
			// Symlinked files are read through; symlinked directories
			// are not followed, which keeps cycles impossible.
			if fi, serr := os.Stat(filepath.Join(w.Root, filepath.FromSlash(child))); serr == nil && fi.IsDir() {
				continue
			}
			w.readFile(ctx, child, out)
		default:
			w.readFile(ctx, child, out)
		}
	}
}

func (w *Walker) readFile(ctx context.Context, rel string, out chan<- Entry) {
	kind, ok := classify(rel)
	if !ok {
		return
	}
	data, err := os.ReadFile(filepath.Join(w.Root, filepath.FromSlash(rel)))
	if err != nil {
		w.emit(ctx, out, Entry{Path: rel, Kind: kind, Err: &IOError{Path: rel, Op: "read", Err: err}})
		return
	}
	w.emit(ctx, out, Entry{
		Path:        rel,
		ID:          w.Interner.Intern(rel),
		Kind:        kind,
		Data:        data,
		Fingerprint: Fingerprint(data),
	})
}

func (w *Walker) emit(ctx context.Context, out chan<- Entry, e Entry) {
	select {
	case out <- e:
	case <-ctx.Done():
	}
}

func (w *Walker) skipDir(rel string) bool {
	base := path.Base(rel)
	if len(base) > 0 && base[0] == '.' {
		return true
	}
	for _, s := range w.Skip {
		if rel == s {
			return true
		}
	}
	return false
}
