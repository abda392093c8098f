// Package output places build artifacts under a single root directory.
//
// Destinations are reserved before any rendering starts so that two
// producers can never race for the same file; a duplicate claim is a
// collision and the build aborts with zero bytes written. Writes replace
// files atomically through a temp file rename and skip rewriting content
// that is already on disk unchanged, which keeps modification times
// stable for downstream tooling.
package output

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"tern/internal/source"
)

var (
	// ErrCollision marks two producers claiming the same destination.
	ErrCollision = errors.New("output: destination collision")
	// ErrUnreserved marks a write to a destination nobody claimed.
	ErrUnreserved = errors.New("output: destination not reserved")
)

// CollisionError names the destination and both claimants. errors.Is
// matches ErrCollision.
type CollisionError struct {
	Dest  string
	First string
	Next  string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("output: %s claimed by both %s and %s", e.Dest, e.First, e.Next)
}

func (e *CollisionError) Is(target error) bool { return target == ErrCollision }

// Writer owns one output root. Reserve every destination up front, then
// Write from as many goroutines as you like; distinct destinations never
// contend.
type Writer struct {
	root string

	mu     sync.Mutex
	claims map[string]string
}

// NewWriter returns a Writer rooted at dir. The directory is created on
// first write, not here, so a build that fails during preparation leaves
// no trace.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir, claims: make(map[string]string)}
}

// Root returns the output root directory.
func (w *Writer) Root() string { return w.root }

// Reserve claims dest for owner. A second claim for the same destination
// returns a CollisionError carrying both owners, and the writer stays
// usable so preparation can report every collision it finds.
func (w *Writer) Reserve(dest, owner string) error {
	clean, err := normalizeDest(dest)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if first, ok := w.claims[clean]; ok {
		return &CollisionError{Dest: clean, First: first, Next: owner}
	}
	w.claims[clean] = owner
	return nil
}

// Reserved returns the owner that claimed dest.
func (w *Writer) Reserved(dest string) (string, bool) {
	clean, err := normalizeDest(dest)
	if err != nil {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	owner, ok := w.claims[clean]
	return owner, ok
}

// Destinations returns every reserved destination, sorted.
func (w *Writer) Destinations() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.claims))
	for dest := range w.claims {
		out = append(out, dest)
	}
	sort.Strings(out)
	return out
}

// Write places data at the reserved destination. It returns false when
// the file already holds identical content, in which case nothing is
// touched. The write itself goes through a temp file in the destination
// directory followed by a rename, so readers never observe a partial
// artifact.
func (w *Writer) Write(dest string, data []byte) (bool, error) {
	clean, err := normalizeDest(dest)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	_, ok := w.claims[clean]
	w.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnreserved, clean)
	}

	abs := filepath.Join(w.root, filepath.FromSlash(clean))
	if same, err := identical(abs, data); err != nil {
		return false, err
	} else if same {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return false, fmt.Errorf("output: create directory for %s: %w", clean, err)
	}
	tmp := abs + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, fmt.Errorf("output: write %s: %w", clean, err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("output: replace %s: %w", clean, err)
	}
	return true, nil
}

// identical reports whether the file at abs already holds data. A size
// mismatch short-circuits without reading the old content.
func identical(abs string, data []byte) (bool, error) {
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("output: %s is a directory", abs)
	}
	if info.Size() != int64(len(data)) {
		return false, nil
	}
	old, err := os.ReadFile(abs)
	if err != nil {
		return false, err
	}
	return source.Fingerprint(old) == source.Fingerprint(data), nil
}

// normalizeDest cleans a slash-separated destination and rejects paths
// that would land outside the output root.
func normalizeDest(dest string) (string, error) {
	if dest == "" {
		return "", errors.New("output: empty destination")
	}
	clean := path.Clean(filepath.ToSlash(dest))
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("output: destination %q escapes the output root", dest)
	}
	return clean, nil
}
