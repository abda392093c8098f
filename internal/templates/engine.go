// Package templates drives layout rendering with text/template.
package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"tern/internal/source"
)

// Source is one template file addressed by its logical name, the path
// relative to the templates directory.
type Source struct {
	Name string
	Text string
}

// Engine holds the template set shared across workers. Each worker derives
// its own Renderer because funcs bound to a scripting engine must not cross
// worker boundaries.
type Engine struct {
	sources []Source
	version uint64
}

// NewEngine fingerprints and orders the set.
func NewEngine(sources []Source) *Engine {
	sorted := append([]Source(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	fps := make([]uint64, 0, len(sorted)*2)
	for _, s := range sorted {
		fps = append(fps, source.FingerprintString(s.Name), source.FingerprintString(s.Text))
	}
	return &Engine{sources: sorted, version: source.Combine(fps...)}
}

// Version fingerprints the full template set. Any rename or edit of any
// template changes the version, which invalidates template stage cache keys.
func (e *Engine) Version() uint64 { return e.version }

// Names lists the set's logical names in order.
func (e *Engine) Names() []string {
	out := make([]string, len(e.sources))
	for i, s := range e.sources {
		out[i] = s.Name
	}
	return out
}

// Has reports whether name is one of the set's logical names. Usable
// before any Renderer exists, which matters during site loading when
// script funcs are not bound yet.
func (e *Engine) Has(name string) bool {
	i := sort.Search(len(e.sources), func(i int) bool { return e.sources[i].Name >= name })
	return i < len(e.sources) && e.sources[i].Name == name
}

// Renderer parses the whole set with funcs bound. Unknown keys in template
// data are render errors, so typos in layouts fail loudly instead of
// emitting empty strings.
func (e *Engine) Renderer(funcs template.FuncMap) (*Renderer, error) {
	root := template.New("").Option("missingkey=error")
	if len(funcs) > 0 {
		root = root.Funcs(funcs)
	}
	for _, s := range e.sources {
		if _, err := root.New(s.Name).Parse(s.Text); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", s.Name, err)
		}
	}
	return &Renderer{set: root}, nil
}

// Renderer executes templates from one parsed set. Not safe for concurrent
// use when its funcs dispatch into a scripting engine; give each worker its
// own.
type Renderer struct {
	set *template.Template
}

// Render executes the named template over data.
func (r *Renderer) Render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := r.set.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return sb.String(), nil
}

// Has reports whether the set contains name.
func (r *Renderer) Has(name string) bool {
	return r.set.Lookup(name) != nil
}

// includePattern finds static {{template "name"}} references.
var includePattern = regexp.MustCompile(`\{\{[-\s]*template\s+"([^"]+)"`)

// Includes lists the template names statically referenced by text. Dynamic
// includes cannot be detected here; they fail at render time instead of
// contributing dependency edges.
func Includes(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range includePattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
