package site

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"tern/internal/config"
	"tern/internal/frontmatter"
	"tern/internal/graph"
	"tern/internal/slug"
	"tern/internal/source"
	"tern/internal/templates"
)

// Loader maps walked source entries onto a Model and the dependency
// graph. It stays alive through the script bootstrap phase so hooks can
// register virtual pages against the same model.
type Loader struct {
	cfg *config.Config
	g   *graph.Graph
	m   *Model
}

// NewLoader prepares a loader writing into g.
func NewLoader(cfg *config.Config, g *graph.Graph) *Loader {
	m := newModel()
	m.Title = cfg.Title
	m.BaseURL = cfg.NormalizedBaseURL()
	m.Params = cfg.Params
	m.Aliases = cfg.ResolvedAliases()
	m.IncludeDrafts = cfg.Drafts
	m.ConfigFP = cfg.FP()
	m.Graph = g
	return &Loader{cfg: cfg, g: g, m: m}
}

// Model returns the model under construction.
func (l *Loader) Model() *Model { return l.m }

// Load registers every entry. Per-entry problems (unreadable files, bad
// frontmatter, unparsable data) become failed nodes or returned issues;
// only structural errors such as template cycles or colliding index
// pages abort the load.
func (l *Loader) Load(entries []source.Entry) (*Model, []error, error) {
	var issues []error

	byKind := make(map[source.Kind][]*source.Entry)
	for i := range entries {
		e := &entries[i]
		if e.Failed() && e.Kind == source.KindNone {
			// Directory-level read failures have no node to hang off.
			issues = append(issues, e.Err)
			continue
		}
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	if err := l.loadTemplates(byKind[source.KindTemplate], byKind[source.KindPartial]); err != nil {
		return nil, issues, err
	}
	if err := l.loadScript(byKind[source.KindScript]); err != nil {
		return nil, issues, err
	}
	l.loadData(byKind[source.KindData])
	l.loadStyles(byKind[source.KindStylesheet])
	l.loadAssets(byKind[source.KindAsset])
	if err := l.loadContent(byKind[source.KindPage], byKind[source.KindData]); err != nil {
		return nil, issues, err
	}

	l.m.ScriptFP = source.Fingerprint(l.m.ScriptSource)
	l.m.DataFP = l.dataFingerprint(byKind[source.KindData])
	return l.m, issues, nil
}

// loadTemplates builds the template engine and the template/partial
// nodes with include edges. A cycle among includes aborts the load.
func (l *Loader) loadTemplates(tpls, partials []*source.Entry) error {
	all := append(append([]*source.Entry(nil), tpls...), partials...)
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })

	var sources []templates.Source
	for _, e := range all {
		name := strings.TrimPrefix(e.Path, source.DirTemplates+"/")
		kind := graph.KindTemplate
		if e.Kind == source.KindPartial {
			kind = graph.KindPartial
		}
		id, err := l.g.Register(e.Path, kind, e)
		if err != nil {
			return err
		}
		l.m.tplNodes[name] = id
		if e.Failed() {
			_, _ = l.g.MarkFailed(id, e.Err)
			continue
		}
		sources = append(sources, templates.Source{Name: name, Text: string(e.Data)})
	}
	l.m.Engine = templates.NewEngine(sources)

	for _, e := range all {
		if e.Failed() {
			continue
		}
		name := strings.TrimPrefix(e.Path, source.DirTemplates+"/")
		from := l.m.tplNodes[name]
		for _, inc := range templates.Includes(string(e.Data)) {
			to, ok := l.m.tplNodes[inc]
			if !ok {
				// Unknown include; execution will report it against the
				// page that renders this template.
				continue
			}
			if err := l.g.DeclareDependency(from, to); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadScript picks up plugins/init.lua. An unreadable hook script is a
// structural failure: running the build without registered hooks would
// silently change every page.
func (l *Loader) loadScript(scripts []*source.Entry) error {
	for _, e := range scripts {
		if e.Path != path.Join(source.DirPlugins, "init.lua") {
			continue
		}
		if e.Failed() {
			return fmt.Errorf("hook script unreadable: %w", e.Err)
		}
		l.m.ScriptSource = e.Data
	}
	return nil
}

// loadData parses standalone documents under data/. Parse failures fail
// the file's node; pages keep rendering without the document.
func (l *Loader) loadData(entries []*source.Entry) {
	for _, e := range entries {
		if !strings.HasPrefix(e.Path, source.DirData+"/") {
			continue
		}
		id, err := l.g.Register(e.Path, graph.KindData, e)
		if err != nil {
			continue
		}
		if e.Failed() {
			_, _ = l.g.MarkFailed(id, e.Err)
			continue
		}
		rel := strings.TrimPrefix(e.Path, source.DirData+"/")
		key := strings.TrimSuffix(rel, path.Ext(rel))
		value, perr := parseStructured(e.Path, e.Data)
		if perr != nil {
			_, _ = l.g.MarkFailed(id, perr)
			continue
		}
		l.m.data[key] = value
		l.m.dataFiles = append(l.m.dataFiles, &DataFile{Key: key, Entry: e, Node: id, Value: value})
	}
	sort.Slice(l.m.dataFiles, func(i, j int) bool { return l.m.dataFiles[i].Key < l.m.dataFiles[j].Key })
}

// loadStyles registers compile nodes for stylesheets. With the styles
// stage disabled every sheet degrades to a verbatim asset copy.
func (l *Loader) loadStyles(entries []*source.Entry) {
	sorted := append([]*source.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, e := range sorted {
		name := strings.TrimPrefix(e.Path, source.DirAssets+"/")
		if !e.Failed() {
			l.m.styleSources[name] = e.Data
		}
		if importOnly(name) {
			continue
		}
		if !l.cfg.Styles.Enabled {
			l.registerAsset(e, assetDest(e.Path))
			continue
		}
		id, err := l.g.Register(e.Path, graph.KindStylesheet, e)
		if err != nil {
			continue
		}
		if e.Failed() {
			_, _ = l.g.MarkFailed(id, e.Err)
			continue
		}
		l.m.stylesheets = append(l.m.stylesheets, &Stylesheet{
			Name:  name,
			Entry: e,
			Node:  id,
			Dest:  stylesheetDest(e.Path),
		})
	}
}

// loadAssets registers verbatim-copy nodes. Files under assets/ land at
// their assets-relative path, non-rendered files under content/ at
// their content-relative path.
func (l *Loader) loadAssets(entries []*source.Entry) {
	sorted := append([]*source.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, e := range sorted {
		if strings.HasPrefix(e.Path, source.DirAssets+"/") && importOnly(strings.TrimPrefix(e.Path, source.DirAssets+"/")) {
			continue
		}
		l.registerAsset(e, assetDest(e.Path))
	}
}

func (l *Loader) registerAsset(e *source.Entry, dest string) {
	id, err := l.g.Register(e.Path, graph.KindAsset, e)
	if err != nil {
		return
	}
	if e.Failed() {
		_, _ = l.g.MarkFailed(id, e.Err)
		return
	}
	l.m.assets = append(l.m.assets, &Asset{Entry: e, Node: id, Dest: dest})
}

// importOnly reports whether an assets-relative path sits under an
// include directory, making it a composition source that is never
// copied or compiled on its own.
func importOnly(rel string) bool {
	for _, seg := range strings.Split(path.Dir(rel), "/") {
		if strings.EqualFold(seg, "include") || strings.EqualFold(seg, "includes") {
			return true
		}
	}
	return false
}

// loadContent assembles collections, items and datums from the files
// under content/ and registers their nodes with dependencies.
func (l *Loader) loadContent(pages, data []*source.Entry) error {
	type candidate struct {
		entry      *source.Entry
		rel        string // content-relative path
		structured bool
	}
	var cands []candidate
	for _, e := range pages {
		cands = append(cands, candidate{entry: e, rel: strings.TrimPrefix(e.Path, source.DirContent+"/")})
	}
	for _, e := range data {
		if strings.HasPrefix(e.Path, source.DirContent+"/") {
			cands = append(cands, candidate{entry: e, rel: strings.TrimPrefix(e.Path, source.DirContent+"/"), structured: true})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].rel < cands[j].rel })

	// Collections first: every directory holding an index file.
	root := &Collection{Name: "/", Dir: "", Data: make(map[string][]*Page)}
	l.m.collections[root.Name] = root
	indexes := make(map[string]candidate)
	for _, c := range cands {
		if stemOf(c.rel) != "index" {
			continue
		}
		dir := dirOf(c.rel)
		if prev, dup := indexes[dir]; dup {
			return fmt.Errorf("collection %q has multiple index files: %s and %s", collectionName(dir), prev.entry.Path, c.entry.Path)
		}
		indexes[dir] = c
		if dir != "" {
			name := collectionName(dir)
			l.m.collections[name] = &Collection{Name: name, Dir: dir, Data: make(map[string][]*Page)}
		}
	}

	// Register non-index pages into their nearest collection. The index
	// depends on every registered member node, loaded or failed, so a
	// broken member fails the collection page instead of silently
	// thinning its listing.
	members := make(map[string][]graph.NodeID)
	for _, c := range cands {
		if stemOf(c.rel) == "index" {
			continue
		}
		coll := l.nearestCollection(dirOf(c.rel))
		depth := pathDepth(c.rel, coll.Dir)
		kind := PageItem
		group := ""
		if depth > 1 {
			kind = PageDatum
			group = datumGroup(c.rel, coll.Dir)
		}
		p, id, err := l.buildPage(c.entry, c.rel, kind, coll, group, c.structured)
		if err != nil {
			return err
		}
		members[coll.Name] = append(members[coll.Name], id)
		if p == nil {
			continue
		}
		switch kind {
		case PageItem:
			if !p.Draft || l.cfg.Drafts {
				p.Position = len(coll.Items)
				coll.Items = append(coll.Items, p)
			}
		case PageDatum:
			if !p.Draft || l.cfg.Drafts {
				coll.Data[group] = append(coll.Data[group], p)
			}
		}
	}

	// Index pages last so they can depend on their members.
	indexDirs := make([]string, 0, len(indexes))
	for dir := range indexes {
		indexDirs = append(indexDirs, dir)
	}
	sort.Strings(indexDirs)
	for _, dir := range indexDirs {
		c := indexes[dir]
		coll := l.m.collections[collectionName(dir)]
		p, _, err := l.buildPage(c.entry, c.rel, PageIndex, coll, "", c.structured)
		if err != nil {
			return err
		}
		if p == nil {
			continue
		}
		coll.Index = p
		for _, member := range members[coll.Name] {
			if err := l.g.DeclareDependency(p.Node, member); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildPage parses, places and registers one content page. A page whose
// source or metadata cannot be read is registered and immediately failed
// so the report names it and dependents propagate; buildPage then returns
// a nil page alongside the failed node.
func (l *Loader) buildPage(e *source.Entry, rel string, kind PageKind, coll *Collection, group string, structured bool) (*Page, graph.NodeID, error) {
	name := e.Path
	gkind := graph.KindPage
	if kind == PageIndex {
		gkind = graph.KindCollection
	} else if kind == PageDatum {
		gkind = graph.KindData
	}
	id, err := l.g.Register(name, gkind, e)
	if err != nil {
		return nil, id, err
	}
	if e.Failed() {
		_, _ = l.g.MarkFailed(id, e.Err)
		return nil, id, nil
	}

	var meta map[string]any
	var body []byte
	if structured {
		value, perr := parseStructured(e.Path, e.Data)
		if perr != nil {
			_, _ = l.g.MarkFailed(id, perr)
			return nil, id, nil
		}
		meta = map[string]any{}
		if m, ok := value.(map[string]any); ok {
			for k, v := range m {
				meta[k] = v
			}
		}
		meta["data"] = value
	} else {
		fields, rest, perr := frontmatter.Extract(e.Data)
		if perr != nil {
			_, _ = l.g.MarkFailed(id, fmt.Errorf("frontmatter of %s: %w", e.Path, perr))
			return nil, id, nil
		}
		meta = fields
		if meta == nil {
			meta = map[string]any{}
		}
		body = rest
	}

	p := &Page{
		Path:       rel,
		Entry:      e,
		Node:       id,
		Kind:       kind,
		Collection: coll.Name,
		Group:      group,
		Meta:       meta,
		Body:       body,
		Structured: structured,
	}
	if err := l.placePage(p, coll); err != nil {
		_, _ = l.g.MarkFailed(id, err)
		return nil, id, nil
	}
	l.m.pages[id] = p
	l.m.byPath[rel] = p
	return p, id, nil
}

// placePage computes slug, title, draft flag, permapath, URL and the
// template binding for a page that already has its metadata.
func (l *Loader) placePage(p *Page, coll *Collection) error {
	stem := stemOf(p.Path)
	if s, ok := metaString(p.Meta, "slug"); ok {
		p.Slug = s
	} else {
		p.Slug = slug.Make(stem)
	}
	if t, ok := metaString(p.Meta, "title"); ok {
		p.Title = t
	} else if p.Kind == PageIndex {
		if coll.Dir == "" {
			p.Title = l.m.Title
		} else {
			p.Title = slug.Deslug(path.Base(coll.Dir))
		}
	} else {
		p.Title = slug.Deslug(stem)
	}
	if d, ok := p.Meta["draft"].(bool); ok {
		p.Draft = d
	}

	dest, url, err := permapath(p.Kind, coll.Dir, p.Slug, l.m.BaseURL, p.Meta)
	if err != nil {
		return err
	}
	p.Permapath = dest
	p.URL = url

	if t, ok := metaString(p.Meta, "template"); ok {
		p.Template = t
	} else {
		p.Template = l.resolveTemplate(p.Kind, coll.Dir)
	}
	if p.Template != "" {
		if tplNode, ok := l.m.tplNodes[p.Template]; ok {
			if err := l.g.DeclareDependency(p.Node, tplNode); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveTemplate walks the collection directory and its ancestors for
// the kind-specific template name or a template named after the
// directory, then falls back to default.html. Data entries probe only
// data.html: without one their markdown stays unwrapped, and the
// default fallback must not drag every datum through a page layout.
func (l *Loader) resolveTemplate(kind PageKind, dir string) string {
	base := "page.html"
	switch kind {
	case PageIndex:
		base = "index.html"
	case PageDatum:
		base = "data.html"
	}
	for d := dir; ; d = parentDir(d) {
		if name := path.Join(d, base); l.m.Engine.Has(name) {
			return name
		}
		if d != "" && kind != PageDatum {
			if name := d + ".html"; l.m.Engine.Has(name) {
				return name
			}
		}
		if d == "" {
			break
		}
	}
	if kind != PageDatum && l.m.Engine.Has("default.html") {
		return "default.html"
	}
	return ""
}

// nearestCollection walks up from dir to the closest directory holding
// an index page, falling back to the root collection.
func (l *Loader) nearestCollection(dir string) *Collection {
	for d := dir; d != ""; d = parentDir(d) {
		if c, ok := l.m.collections[collectionName(d)]; ok {
			return c
		}
	}
	return l.m.collections["/"]
}

// AddVirtualPage registers a script-created page. The path is
// content-relative; the page joins collections under the same rules as
// a file, except that virtual index pages are rejected.
func (l *Loader) AddVirtualPage(rel string, meta map[string]any, body string) error {
	rel = strings.TrimPrefix(path.Clean(rel), "/")
	if rel == "" || rel == "." {
		return fmt.Errorf("virtual page path is empty")
	}
	if stemOf(rel) == "index" {
		return fmt.Errorf("virtual page %q: index pages must exist on disk", rel)
	}
	if _, exists := l.m.byPath[rel]; exists {
		return fmt.Errorf("virtual page %q collides with an existing page", rel)
	}
	if meta == nil {
		meta = map[string]any{}
	}

	coll := l.nearestCollection(dirOf(rel))
	kind := PageItem
	gkind := graph.KindPage
	group := ""
	if pathDepth(rel, coll.Dir) > 1 {
		kind = PageDatum
		gkind = graph.KindData
		group = datumGroup(rel, coll.Dir)
	}

	id, err := l.g.Register("virtual/"+rel, gkind, nil)
	if err != nil {
		return err
	}
	p := &Page{
		Path:       rel,
		Node:       id,
		Kind:       kind,
		Collection: coll.Name,
		Group:      group,
		Meta:       meta,
		Body:       []byte(body),
	}
	if err := l.placePage(p, coll); err != nil {
		return err
	}
	l.m.pages[id] = p
	l.m.byPath[rel] = p

	switch kind {
	case PageItem:
		if !p.Draft || l.cfg.Drafts {
			p.Position = len(coll.Items)
			coll.Items = append(coll.Items, p)
		}
	case PageDatum:
		if !p.Draft || l.cfg.Drafts {
			coll.Data[group] = append(coll.Data[group], p)
		}
	}
	if coll.Index != nil {
		if err := l.g.DeclareDependency(coll.Index.Node, id); err != nil {
			return err
		}
	}
	return nil
}

// dataFingerprint folds the content fingerprints of all data files so
// template contexts shift when any data document changes.
func (l *Loader) dataFingerprint(entries []*source.Entry) uint64 {
	sorted := append([]*source.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	fps := make([]uint64, 0, len(sorted)+1)
	for _, e := range sorted {
		if strings.HasPrefix(e.Path, source.DirData+"/") && !e.Failed() {
			fps = append(fps, source.FingerprintString(e.Path), e.Fingerprint)
		}
	}
	return source.Combine(fps...)
}

// parseStructured decodes a .yaml/.toml/.json document.
func parseStructured(path string, data []byte) (any, error) {
	var value any
	switch strings.ToLower(pathExt(path)) {
	case ".toml":
		table := map[string]any{}
		if err := toml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		value = table
	case ".json":
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return normalizeValue(value), nil
}

// normalizeValue lifts decoder-specific map types to map[string]any so
// downstream consumers see one shape regardless of input format.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeValue(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeValue(val)
		}
		return t
	default:
		return v
	}
}

func stemOf(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

func dirOf(rel string) string {
	d := path.Dir(rel)
	if d == "." {
		return ""
	}
	return d
}

func parentDir(d string) string {
	p := path.Dir(d)
	if p == "." || p == d {
		return ""
	}
	return p
}

func pathExt(p string) string { return path.Ext(p) }

// pathDepth counts segments of rel below the collection dir.
func pathDepth(rel, collDir string) int {
	sub := rel
	if collDir != "" {
		sub = strings.TrimPrefix(rel, collDir+"/")
	}
	return strings.Count(sub, "/") + 1
}

// datumGroup keys a datum by its parent directory relative to the
// collection dir ("extra", "extra/more").
func datumGroup(rel, collDir string) string {
	d := dirOf(rel)
	if collDir != "" {
		d = strings.TrimPrefix(d, collDir+"/")
	}
	return d
}

func collectionName(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}

func sortedGroupKeys(data map[string][]*Page) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
