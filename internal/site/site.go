// Package site builds the in-memory model of one site: pages grouped
// into collections, templates, stylesheets, assets and data files, all
// registered as nodes of the dependency graph. The model is assembled
// once per build by the Loader and is then read concurrently by render
// workers; only the render results and script-published values mutate
// after loading, behind the model's lock.
package site

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tern/internal/graph"
	"tern/internal/markdown"
	"tern/internal/source"
	"tern/internal/templates"
)

// PageKind places a page within its collection.
type PageKind int

const (
	// PageItem is a direct child of a collection directory.
	PageItem PageKind = iota
	// PageIndex is a collection's index.md.
	PageIndex
	// PageDatum sits deeper than one level below its collection; it
	// contributes context to the collection but writes no artifact.
	PageDatum
)

func (k PageKind) String() string {
	switch k {
	case PageIndex:
		return "index"
	case PageDatum:
		return "datum"
	default:
		return "item"
	}
}

// Page is one renderable content node: a markdown file, a structured
// data file promoted to a page, or a script-registered virtual page.
type Page struct {
	// Path is content-relative with forward slashes ("posts/hello.md").
	Path string
	// Entry is nil for virtual pages.
	Entry *source.Entry
	Node  graph.NodeID
	Kind  PageKind

	// Collection names the owning collection ("/" for the root).
	Collection string
	// Group is the datum group key relative to the collection dir.
	Group string

	// Meta holds the parsed frontmatter, or the whole parsed document
	// for structured data pages.
	Meta map[string]any
	// Body is the markdown source after the frontmatter split. Empty
	// for structured data pages.
	Body []byte
	// Structured marks .toml/.json/.yaml pages that skip the markdown
	// stage and feed their parsed document to the template as "data".
	Structured bool

	Slug     string
	Title    string
	Draft    bool
	Position int

	// Template is the resolved template name, empty when none applies.
	Template string
	// Permapath is the output-relative destination; empty for datums.
	Permapath string
	// URL is the site-absolute address of the rendered page.
	URL string
}

// SourceFP fingerprints the page's raw input.
func (p *Page) SourceFP() uint64 {
	if p.Entry != nil {
		return p.Entry.Fingerprint
	}
	return source.Fingerprint(p.Body)
}

// Rendered carries the markdown stage products of a page, stored on the
// model once the stage completes so dependent nodes can read them.
type Rendered struct {
	Content  string
	Sections []string
	TOC      []markdown.TocEntry
	Snippet  string
}

// Collection groups the pages of one content directory.
type Collection struct {
	// Name is "/" for the root collection, otherwise the directory path
	// relative to content/ ("posts", "docs/guides").
	Name string
	// Dir is the content-relative directory, "" for the root.
	Dir string
	// Index is nil for the implicit root collection without index.md.
	Index *Page
	// Items are the direct page children sorted by path.
	Items []*Page
	// Data groups datum pages by Group key.
	Data map[string][]*Page
}

// URL returns the collection's address under base.
func (c *Collection) URL(base string) string {
	if c.Dir == "" {
		return ensureTrailingSlash(base)
	}
	return ensureTrailingSlash(joinURL(base, c.Dir))
}

// Stylesheet is one compilable asset. Sheets under include/ directories
// exist only as import targets and never appear here.
type Stylesheet struct {
	// Name is the assets-relative path ("css/main.scss").
	Name  string
	Entry *source.Entry
	Node  graph.NodeID
	// Dest is the output-relative destination with a .css extension.
	Dest string
}

// Asset is a file copied verbatim into the output tree.
type Asset struct {
	Entry *source.Entry
	Node  graph.NodeID
	// Dest is the output-relative destination.
	Dest string
}

// DataFile is a parsed standalone data document.
type DataFile struct {
	// Key is the data-relative path without extension ("authors",
	// "team/members").
	Key   string
	Entry *source.Entry
	Node  graph.NodeID
	Value any
}

// Model is the loaded site. Everything set by the Loader is immutable
// afterwards; render results, computed values and virtual pages go
// through the locked setters.
type Model struct {
	Title string
	// BaseURL is the normalized base path ("/" or "/prefix"), never a
	// full URL. See config.NormalizedBaseURL.
	BaseURL string
	Params  map[string]any
	Aliases map[string]string
	// IncludeDrafts mirrors the drafts config flag for listings.
	IncludeDrafts bool

	Graph  *graph.Graph
	Engine *templates.Engine

	// ScriptSource is the plugins/init.lua content, empty when absent.
	ScriptSource []byte

	ConfigFP uint64
	ScriptFP uint64
	DataFP   uint64

	pages        map[graph.NodeID]*Page
	byPath       map[string]*Page
	collections  map[string]*Collection
	stylesheets  []*Stylesheet
	assets       []*Asset
	dataFiles    []*DataFile
	data         map[string]any
	styleSources map[string][]byte
	tplNodes     map[string]graph.NodeID

	mu       sync.RWMutex
	rendered map[graph.NodeID]*Rendered
	computed map[string]any
}

func newModel() *Model {
	return &Model{
		pages:        make(map[graph.NodeID]*Page),
		byPath:       make(map[string]*Page),
		collections:  make(map[string]*Collection),
		data:         make(map[string]any),
		styleSources: make(map[string][]byte),
		tplNodes:     make(map[string]graph.NodeID),
		rendered:     make(map[graph.NodeID]*Rendered),
		computed:     make(map[string]any),
	}
}

// StyleSource resolves an assets-relative stylesheet path, including
// import-only sheets under include directories.
func (m *Model) StyleSource(path string) ([]byte, bool) {
	b, ok := m.styleSources[path]
	return b, ok
}

// TemplateNode resolves a template name to its graph node.
func (m *Model) TemplateNode(name string) (graph.NodeID, bool) {
	id, ok := m.tplNodes[name]
	return id, ok
}

// Page resolves a node ID to its page, if the node is one.
func (m *Model) Page(id graph.NodeID) (*Page, bool) {
	p, ok := m.pages[id]
	return p, ok
}

// PageByPath resolves a content-relative path.
func (m *Model) PageByPath(path string) (*Page, bool) {
	p, ok := m.byPath[path]
	return p, ok
}

// Pages returns all pages sorted by path, virtual pages included.
func (m *Model) Pages() []*Page {
	out := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Collection returns a collection by name.
func (m *Model) Collection(name string) (*Collection, bool) {
	c, ok := m.collections[name]
	return c, ok
}

// Collections returns all collections sorted by name.
func (m *Model) Collections() []*Collection {
	out := make([]*Collection, 0, len(m.collections))
	for _, c := range m.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stylesheets returns the compilable sheets sorted by name.
func (m *Model) Stylesheets() []*Stylesheet { return m.stylesheets }

// Assets returns the verbatim-copy files.
func (m *Model) Assets() []*Asset { return m.assets }

// DataFiles returns the parsed standalone data documents.
func (m *Model) DataFiles() []*DataFile { return m.dataFiles }

// SetRendered stores a page's markdown products. Safe for concurrent
// workers; each node is written exactly once.
func (m *Model) SetRendered(id graph.NodeID, r *Rendered) {
	m.mu.Lock()
	m.rendered[id] = r
	m.mu.Unlock()
}

// RenderedFor reads a page's markdown products, nil when the page has
// not rendered (or never renders, like drafts).
func (m *Model) RenderedFor(id graph.NodeID) *Rendered {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rendered[id]
}

// SetComputed publishes a script-registered value under site.computed.
func (m *Model) SetComputed(name string, value any) {
	m.mu.Lock()
	m.computed[name] = value
	m.mu.Unlock()
}

// Computed returns a copy of the script-published values.
func (m *Model) Computed() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.computed))
	for k, v := range m.computed {
		out[k] = v
	}
	return out
}

// DataValue resolves a data document by key or site-relative path, so
// both "authors" and "data/authors.yaml" address the same file.
func (m *Model) DataValue(path string) (any, error) {
	key := strings.TrimPrefix(path, source.DirData+"/")
	if i := strings.LastIndexByte(key, '.'); i > 0 && !strings.Contains(key[i:], "/") {
		if _, ok := m.data[key[:i]]; ok {
			key = key[:i]
		}
	}
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("no data file for %q", path)
	}
	return v, nil
}

// Data returns the data documents keyed by data-relative path.
func (m *Model) Data() map[string]any { return m.data }

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func joinURL(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return "/" + strings.Join(segs, "/")
}
