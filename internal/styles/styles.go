// Package styles compiles site stylesheets: @import statements are inlined
// recursively and the result is minified.
package styles

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

// ErrImportCycle reports an @import chain that reaches a file already being
// inlined.
var ErrImportCycle = errors.New("stylesheet import cycle")

// ErrImportNotFound reports an @import target the resolver cannot supply.
var ErrImportNotFound = errors.New("stylesheet import not found")

// Resolver supplies the source of an imported stylesheet by its path
// relative to the asset root.
type Resolver func(path string) ([]byte, bool)

// importPattern matches the quoted form of @import. url(...) imports point at
// external resources and are left alone.
var importPattern = regexp.MustCompile(`@import\s+"([^"]+)"\s*;`)

// Compiler inlines imports and minifies. One Compiler is safe for concurrent
// use by multiple workers.
type Compiler struct {
	minifier *minify.M
	resolve  Resolver
	minimize bool
}

// NewCompiler builds a Compiler over the given resolver. When minimize is
// false the inlined source is returned unminified, which keeps watch-mode
// diffs readable.
func NewCompiler(resolve Resolver, minimize bool) *Compiler {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	return &Compiler{minifier: m, resolve: resolve, minimize: minimize}
}

// Compile inlines the import closure of the named stylesheet and minifies
// the result. Import paths resolve relative to the importing file. A file
// reached through two different chains is inlined once; a chain that
// reaches a file still being inlined is a cycle.
func (c *Compiler) Compile(name string, src []byte) ([]byte, error) {
	n := clean(name)
	in := &inliner{
		resolve: c.resolve,
		stack:   map[string]bool{n: true},
		seen:    map[string]bool{n: true},
	}
	inlined, err := in.inline(name, src)
	if err != nil {
		return nil, err
	}
	if !c.minimize {
		return []byte(inlined), nil
	}
	out, err := c.minifier.String("text/css", inlined)
	if err != nil {
		return nil, fmt.Errorf("minify %s: %w", name, err)
	}
	return []byte(out), nil
}

// inliner is the per-compile import state. stack holds the chain of files
// currently being inlined, seen holds every file already inlined.
type inliner struct {
	resolve Resolver
	stack   map[string]bool
	seen    map[string]bool
}

func (in *inliner) inline(name string, src []byte) (string, error) {
	var firstErr error
	out := importPattern.ReplaceAllStringFunc(string(src), func(stmt string) string {
		if firstErr != nil {
			return stmt
		}
		target := importPattern.FindStringSubmatch(stmt)[1]
		resolved := resolveImport(name, target)
		if in.stack[resolved] {
			firstErr = fmt.Errorf("%w: %s imports %s", ErrImportCycle, name, resolved)
			return stmt
		}
		if in.seen[resolved] {
			return ""
		}
		data, ok := in.resolve(resolved)
		if !ok {
			firstErr = fmt.Errorf("%w: %s imports %s", ErrImportNotFound, name, resolved)
			return stmt
		}
		in.seen[resolved] = true
		in.stack[resolved] = true
		nested, err := in.inline(resolved, data)
		delete(in.stack, resolved)
		if err != nil {
			firstErr = err
			return stmt
		}
		return nested
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Closure returns the sorted set of stylesheet paths reachable from name
// through @import statements, excluding name itself. Unresolvable or cyclic
// imports are skipped; Compile reports those as errors.
func Closure(name string, src []byte, resolve Resolver) []string {
	seen := map[string]bool{clean(name): true}
	var walk func(from string, data []byte)
	walk = func(from string, data []byte) {
		for _, m := range importPattern.FindAllSubmatch(data, -1) {
			resolved := resolveImport(from, string(m[1]))
			if seen[resolved] {
				continue
			}
			seen[resolved] = true
			if nested, ok := resolve(resolved); ok {
				walk(resolved, nested)
			}
		}
	}
	walk(name, src)

	delete(seen, clean(name))
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// resolveImport resolves target relative to the directory of the importing
// file. An omitted extension defaults to that of the importer.
func resolveImport(from, target string) string {
	resolved := clean(path.Join(path.Dir(from), target))
	if path.Ext(resolved) == "" {
		if ext := path.Ext(from); ext != "" {
			resolved += ext
		}
	}
	return resolved
}

func clean(p string) string {
	return path.Clean(strings.TrimPrefix(p, "./"))
}

// OutputName maps a source stylesheet path to its artifact name. Sass
// dialect extensions become .css, plain .css stays untouched.
func OutputName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".scss", ".sass":
		return strings.TrimSuffix(name, path.Ext(name)) + ".css"
	default:
		return name
	}
}
