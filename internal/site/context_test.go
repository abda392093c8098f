package site

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tern/internal/config"
	"tern/internal/markdown"
	"tern/internal/source"
)

func postsSite(t *testing.T) (*Model, *Collection) {
	t.Helper()
	m, _ := loadSite(t, config.Default(), []source.Entry{
		entry("content/posts/index.md", source.KindPage, "# Posts\n"),
		entry("content/posts/alpha.md", source.KindPage, "# Alpha\n"),
		entry("content/posts/beta.md", source.KindPage, "# Beta\n"),
		entry("content/posts/gamma.md", source.KindPage, "# Gamma\n"),
	})
	posts, ok := m.Collection("posts")
	require.True(t, ok)
	return m, posts
}

func TestTemplateContext_ItemSeesNeighborsAndCollection(t *testing.T) {
	m, posts := postsSite(t)
	beta := posts.Items[1]

	own := &Rendered{
		Content:  "<p>beta</p>",
		Sections: []string{"<p>beta</p>"},
		TOC:      []markdown.TocEntry{{Title: "Beta", Level: 1, ID: "beta"}},
		Snippet:  "beta",
	}
	ctx := m.TemplateContext(beta, own)

	require.Equal(t, "<p>beta</p>", ctx["content"])
	require.Equal(t, "beta", ctx["snippet"])
	require.Equal(t, 1, ctx["position"])
	require.Equal(t, false, ctx["is_index"])

	next := ctx["next"].(map[string]any)
	prev := ctx["previous"].(map[string]any)
	require.Equal(t, "Gamma", next["title"])
	require.Equal(t, "Alpha", prev["title"])
	// Neighbors are load-time metadata; their render products are not
	// part of an item's context.
	require.NotContains(t, next, "content")
	require.NotContains(t, prev, "content")

	coll := ctx["collection"].(map[string]any)
	require.Equal(t, "posts", coll["name"])
	require.Equal(t, "/posts/", coll["url"])
	items := coll["items"].([]any)
	require.Len(t, items, 3)
	require.NotContains(t, items[0].(map[string]any), "content")
}

func TestTemplateContext_BoundaryItemsOmitMissingNeighbors(t *testing.T) {
	m, posts := postsSite(t)

	first := m.TemplateContext(posts.Items[0], nil)
	require.NotContains(t, first, "previous")
	require.Contains(t, first, "next")

	last := m.TemplateContext(posts.Items[2], nil)
	require.Contains(t, last, "previous")
	require.NotContains(t, last, "next")
}

func TestTemplateContext_IndexListingsCarryRenderedExtras(t *testing.T) {
	m, posts := postsSite(t)

	m.SetRendered(posts.Items[0].Node, &Rendered{Content: "<p>alpha</p>", Snippet: "alpha"})
	ctx := m.TemplateContext(posts.Index, &Rendered{Content: "<p>index</p>"})

	require.Equal(t, true, ctx["is_index"])
	coll := ctx["collection"].(map[string]any)
	items := coll["items"].([]any)
	alpha := items[0].(map[string]any)
	require.Equal(t, "<p>alpha</p>", alpha["content"])
	require.Equal(t, "alpha", alpha["snippet"])
	// Members without a recorded render stay at load-time metadata.
	require.NotContains(t, items[1].(map[string]any), "content")

	// Site-wide listings never carry render products, even for the
	// same pages.
	site := ctx["site"].(map[string]any)
	siteColls := site["collections"].(map[string]any)
	sitePosts := siteColls["posts"].(map[string]any)
	siteItems := sitePosts["items"].([]any)
	require.NotContains(t, siteItems[0].(map[string]any), "content")
}

func TestTemplateContext_SiteSkipsDatumsAndDrafts(t *testing.T) {
	m, _ := loadSite(t, config.Default(), []source.Entry{
		entry("content/visible.md", source.KindPage, "# Visible\n"),
		entry("content/hidden.md", source.KindPage, "---\ndraft: true\n---\n# Hidden\n"),
		entry("content/posts/index.md", source.KindPage, "idx\n"),
		entry("content/posts/deep/datum.md", source.KindPage, "# Datum\n"),
	})
	p, ok := m.PageByPath("visible.md")
	require.True(t, ok)

	site := m.TemplateContext(p, nil)["site"].(map[string]any)
	pages := site["pages"].([]any)
	paths := make([]string, 0, len(pages))
	for _, raw := range pages {
		paths = append(paths, raw.(map[string]any)["path"].(string))
	}
	require.Contains(t, paths, "visible.md")
	require.NotContains(t, paths, "hidden.md")
	require.NotContains(t, paths, "posts/deep/datum.md")
}

func TestContextFP_TracksTemplateAndContext(t *testing.T) {
	m, posts := postsSite(t)
	ctx := m.TemplateContext(posts.Items[0], nil)

	a, err := m.ContextFP("page.html", ctx)
	require.NoError(t, err)
	b, err := m.ContextFP("page.html", m.TemplateContext(posts.Items[0], nil))
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := m.ContextFP("other.html", ctx)
	require.NoError(t, err)
	require.NotEqual(t, a, other)

	ctx["extra"] = "value"
	changed, err := m.ContextFP("page.html", ctx)
	require.NoError(t, err)
	require.NotEqual(t, a, changed)
}
