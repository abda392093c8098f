package site

import (
	"tern/internal/frontmatter"
	"tern/internal/markdown"
	"tern/internal/source"
)

// TemplateContext assembles the data a template sees when rendering p.
// own carries the page's markdown products (nil for structured pages
// and drafts). Listings of other pages expose rendered extras only on
// collection indexes, whose dependencies guarantee the members are
// done; everywhere else listings stay at load-time metadata so the
// result never depends on scheduling order.
func (m *Model) TemplateContext(p *Page, own *Rendered) map[string]any {
	ctx := m.pageMeta(p)
	if own != nil {
		ctx["content"] = own.Content
		ctx["sections"] = stringsToAny(own.Sections)
		ctx["toc"] = tocToAny(own.TOC)
		ctx["snippet"] = own.Snippet
	}
	ctx["position"] = p.Position
	ctx["is_index"] = p.Kind == PageIndex

	coll, ok := m.collections[p.Collection]
	if ok {
		withRendered := p.Kind == PageIndex
		ctx["collection"] = m.collectionContext(coll, withRendered)
		if p.Kind == PageItem {
			if next := neighborItem(coll, p.Position+1); next != nil {
				ctx["next"] = m.pageMeta(next)
			}
			if prev := neighborItem(coll, p.Position-1); prev != nil {
				ctx["previous"] = m.pageMeta(prev)
			}
		}
	}

	ctx["site"] = m.siteContext()
	return ctx
}

// pageMeta merges a page's frontmatter with its computed placement
// fields. Rendered extras are added by the caller where dependencies
// make them safe to read.
func (m *Model) pageMeta(p *Page) map[string]any {
	out := make(map[string]any, len(p.Meta)+6)
	for k, v := range p.Meta {
		out[k] = v
	}
	out["path"] = p.Path
	out["slug"] = p.Slug
	out["title"] = p.Title
	out["url"] = p.URL
	out["draft"] = p.Draft
	return out
}

// renderedMeta is pageMeta plus the page's markdown products, used for
// member listings on collection indexes.
func (m *Model) renderedMeta(p *Page) map[string]any {
	out := m.pageMeta(p)
	if r := m.RenderedFor(p.Node); r != nil {
		out["content"] = r.Content
		out["sections"] = stringsToAny(r.Sections)
		out["toc"] = tocToAny(r.TOC)
		out["snippet"] = r.Snippet
	}
	return out
}

func (m *Model) collectionContext(c *Collection, withRendered bool) map[string]any {
	meta := func(p *Page) map[string]any {
		if withRendered {
			return m.renderedMeta(p)
		}
		return m.pageMeta(p)
	}

	items := make([]any, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, meta(item))
	}
	data := make(map[string]any, len(c.Data))
	for _, group := range sortedGroupKeys(c.Data) {
		entries := make([]any, 0, len(c.Data[group]))
		for _, datum := range c.Data[group] {
			entries = append(entries, meta(datum))
		}
		data[group] = entries
	}
	out := map[string]any{
		"name":  c.Name,
		"url":   c.URL(m.BaseURL),
		"items": items,
		"data":  data,
	}
	if c.Index != nil {
		out["index"] = m.pageMeta(c.Index)
	}
	return out
}

// siteContext exposes site-wide values. Page listings carry load-time
// metadata only.
func (m *Model) siteContext() map[string]any {
	collections := make(map[string]any, len(m.collections))
	for _, c := range m.Collections() {
		collections[c.Name] = m.collectionContext(c, false)
	}
	pages := make([]any, 0, len(m.pages))
	for _, p := range m.Pages() {
		if p.Kind == PageDatum || (p.Draft && !m.IncludeDrafts) {
			continue
		}
		pages = append(pages, m.pageMeta(p))
	}
	return map[string]any{
		"title":       m.Title,
		"base_url":    m.BaseURL,
		"params":      m.Params,
		"computed":    m.Computed(),
		"data":        m.data,
		"pages":       pages,
		"collections": collections,
	}
}

// ContextFP fingerprints a template context together with the template
// identity and everything that can change expansion: the template set
// version, the script version and the configuration.
func (m *Model) ContextFP(templateName string, ctx map[string]any) (uint64, error) {
	canonical, err := frontmatter.CanonicalBytes(ctx)
	if err != nil {
		return 0, err
	}
	return source.Combine(
		m.Engine.Version(),
		m.ScriptFP,
		m.ConfigFP,
		source.FingerprintString(templateName),
		source.Fingerprint(canonical),
	), nil
}

func neighborItem(c *Collection, pos int) *Page {
	if pos < 0 || pos >= len(c.Items) {
		return nil
	}
	return c.Items[pos]
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func tocToAny(entries []markdown.TocEntry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		node := map[string]any{
			"title": e.Title,
			"level": e.Level,
			"id":    e.ID,
		}
		if len(e.Children) > 0 {
			node["children"] = tocToAny(e.Children)
		}
		out[i] = node
	}
	return out
}
