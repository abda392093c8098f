package templates

import (
	"testing"
	"text/template"

	"github.com/stretchr/testify/require"
)

func TestEngine_Version_StableAndSensitive(t *testing.T) {
	a := NewEngine([]Source{{Name: "page.html", Text: "A"}, {Name: "base.html", Text: "B"}})
	b := NewEngine([]Source{{Name: "base.html", Text: "B"}, {Name: "page.html", Text: "A"}})
	c := NewEngine([]Source{{Name: "base.html", Text: "B!"}, {Name: "page.html", Text: "A"}})

	require.Equal(t, a.Version(), b.Version(), "source order must not affect the version")
	require.NotEqual(t, a.Version(), c.Version(), "content edits must change the version")
}

func TestRenderer_RendersWithData(t *testing.T) {
	e := NewEngine([]Source{{Name: "page.html", Text: `<h1>{{ .page.title }}</h1>`}})

	r, err := e.Renderer(Builtins())
	require.NoError(t, err)

	out, err := r.Render("page.html", map[string]any{"page": map[string]any{"title": "Home"}})
	require.NoError(t, err)
	require.Equal(t, "<h1>Home</h1>", out)
}

func TestRenderer_MissingKey_Errors(t *testing.T) {
	e := NewEngine([]Source{{Name: "page.html", Text: `{{ .page.nope }}`}})

	r, err := e.Renderer(nil)
	require.NoError(t, err)

	_, err = r.Render("page.html", map[string]any{"page": map[string]any{}})
	require.Error(t, err)
}

func TestRenderer_IncludesPartial(t *testing.T) {
	e := NewEngine([]Source{
		{Name: "page.html", Text: `{{ template "partials/nav.html" . }}<main>{{ .body }}</main>`},
		{Name: "partials/nav.html", Text: `<nav>{{ .site }}</nav>`},
	})

	r, err := e.Renderer(nil)
	require.NoError(t, err)

	out, err := r.Render("page.html", map[string]any{"site": "tern", "body": "x"})
	require.NoError(t, err)
	require.Equal(t, "<nav>tern</nav><main>x</main>", out)
}

func TestRenderer_ParseError_NamesTemplate(t *testing.T) {
	e := NewEngine([]Source{{Name: "bad.html", Text: `{{ if }}`}})

	_, err := e.Renderer(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.html")
}

func TestRenderer_Has(t *testing.T) {
	e := NewEngine([]Source{{Name: "page.html", Text: `x`}})

	r, err := e.Renderer(nil)
	require.NoError(t, err)
	require.True(t, r.Has("page.html"))
	require.False(t, r.Has("index.html"))
}

func TestEngine_Has_WorksWithoutRenderer(t *testing.T) {
	e := NewEngine([]Source{
		{Name: "posts/page.html", Text: `x`},
		{Name: "default.html", Text: `y`},
	})

	require.True(t, e.Has("default.html"))
	require.True(t, e.Has("posts/page.html"))
	require.False(t, e.Has("page.html"))
}

func TestRenderer_CustomFuncs_Available(t *testing.T) {
	e := NewEngine([]Source{{Name: "p.html", Text: `{{ shout .w }}`}})

	r, err := e.Renderer(template.FuncMap{"shout": func(s string) string { return s + "!" }})
	require.NoError(t, err)

	out, err := r.Render("p.html", map[string]any{"w": "go"})
	require.NoError(t, err)
	require.Equal(t, "go!", out)
}

func TestIncludes_FindsStaticReferences(t *testing.T) {
	text := `{{ template "base.html" . }} {{template "partials/nav.html"}} {{- template "base.html" . }}`

	got := Includes(text)
	require.Equal(t, []string{"base.html", "partials/nav.html"}, got)
}

func TestIncludes_NoReferences_Empty(t *testing.T) {
	require.Empty(t, Includes(`{{ .page.title }}`))
}
