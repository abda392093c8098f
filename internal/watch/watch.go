// Package watch drives continuous rebuilds from filesystem events. It
// registers the site source trees with fsnotify, debounces event
// bursts, and invokes a rebuild callback with the coalesced change set.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"tern/internal/config"
	"tern/internal/logfields"
	"tern/internal/source"
)

// Options configure a Watcher.
type Options struct {
	SiteDir string
	// Debounce is the quiet window after the last event before a
	// rebuild fires.
	Debounce time.Duration
	// FullRebuildEvery schedules an unconditional periodic rebuild;
	// zero disables it.
	FullRebuildEvery time.Duration
	Logger           *slog.Logger
	// Rebuild runs one build. changed lists the root-relative paths
	// that triggered it, empty for scheduled full rebuilds.
	Rebuild func(ctx context.Context, changed []string) error
	// Ignore lists top-level directory names to skip, e.g. the output
	// directory when it lives inside the site root.
	Ignore []string
}

// Watcher owns the fsnotify handle and the pending change set.
type Watcher struct {
	opts    Options
	fsw     *fsnotify.Watcher
	trigger chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
}

// sourceDirs are the top-level trees whose files feed builds.
var sourceDirs = map[string]bool{
	source.DirContent:   true,
	source.DirTemplates: true,
	source.DirAssets:    true,
	source.DirData:      true,
	source.DirPlugins:   true,
}

// New registers the site's source directories and returns a watcher
// ready to Run.
func New(opts Options) (*Watcher, error) {
	if opts.Rebuild == nil {
		return nil, errors.New("watch: nil rebuild func")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		opts:    opts,
		fsw:     fsw,
		trigger: make(chan struct{}, 1),
		pending: make(map[string]struct{}),
	}
	if err := w.addRoots(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRoots watches the site root (for site.yaml) and every existing
// source tree. Directories created later are picked up from create
// events on their parents.
func (w *Watcher) addRoots() error {
	if err := w.fsw.Add(w.opts.SiteDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.opts.SiteDir, err)
	}
	for dir := range sourceDirs {
		if err := w.addTree(filepath.Join(w.opts.SiteDir, dir)); err != nil {
			return err
		}
	}
	return nil
}

// addTree watches dir and all its subdirectories. A missing dir is not
// an error.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if aerr := w.fsw.Add(p); aerr != nil {
			return fmt.Errorf("watch %s: %w", p, aerr)
		}
		return nil
	})
}

// Run blocks until ctx is canceled, rebuilding after each debounced
// batch of events. An in-flight rebuild always finishes first; events
// arriving during it coalesce into the next trigger.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if w.opts.FullRebuildEvery > 0 {
		sched, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		if _, err := sched.NewJob(
			gocron.DurationJob(w.opts.FullRebuildEvery),
			gocron.NewTask(w.kick),
			gocron.WithName("full-rebuild"),
		); err != nil {
			return fmt.Errorf("schedule full rebuild: %w", err)
		}
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
	}

	go w.eventLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.trigger:
			changed := w.takePending()
			w.opts.Logger.Info("rebuilding", logfields.Count(len(changed)))
			if err := w.opts.Rebuild(ctx, changed); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.opts.Logger.Error("rebuild failed", logfields.Error(err))
			}
		}
	}
}

func (w *Watcher) eventLoop(ctx context.Context) {
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if rel, ok := w.relevant(ev); ok {
				w.note(rel)
				debounce.Reset(w.opts.Debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("watch error", logfields.Error(err))
		case <-debounce.C:
			w.kick()
		}
	}
}

// relevant filters events down to build inputs and returns the
// root-relative path. Newly created directories inside a source tree
// are registered on the spot.
func (w *Watcher) relevant(ev fsnotify.Event) (string, bool) {
	if ev.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(w.opts.SiteDir, ev.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	top, _, nested := strings.Cut(rel, "/")
	for _, ig := range w.opts.Ignore {
		if top == ig {
			return "", false
		}
	}
	if !nested {
		if rel == config.FileName {
			return rel, true
		}
		// A new source tree appearing at the root needs watching.
		if sourceDirs[rel] && ev.Op&fsnotify.Create != 0 {
			w.register(ev.Name, rel)
			return rel, true
		}
		return "", false
	}
	if !sourceDirs[top] {
		return "", false
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, serr := os.Stat(ev.Name); serr == nil && info.IsDir() {
			w.register(ev.Name, rel)
		}
	}
	return rel, true
}

func (w *Watcher) register(abs, rel string) {
	if err := w.addTree(abs); err != nil {
		w.opts.Logger.Warn("watch add failed", logfields.Path(rel), logfields.Error(err))
	}
}

func (w *Watcher) note(rel string) {
	w.mu.Lock()
	w.pending[rel] = struct{}{}
	w.mu.Unlock()
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
	sort.Strings(changed)
	return changed
}

// kick requests a rebuild; a request already queued absorbs this one.
func (w *Watcher) kick() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}
