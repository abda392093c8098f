package markdown

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_Paragraph_EmitsHTML(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("Hello *world*.\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, "<p>Hello <em>world</em>.</p>")
	require.Len(t, res.Sections, 1)
}

func TestRender_GFMStrikethrough_Supported(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("~~gone~~\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, "<del>gone</del>")
}

func TestRender_HeadingIDs_SlugifiedAndDeduplicated(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("## Getting Started\n\ntext\n\n## Getting Started\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, `id="getting-started"`)
	require.Contains(t, res.HTML, `id="getting-started-1"`)
}

func TestRender_ExplicitHeadingID_Kept(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("## Intro {#custom}\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, `id="custom"`)
}

func TestRender_HeadingAnchors_Appended(t *testing.T) {
	p := New(Options{HeadingAnchors: true})

	res, err := p.Render([]byte("## Intro\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, `<a class="anchor" href="#intro" aria-hidden="true">#</a>`)
}

func TestRender_TOC_NestsByLevel(t *testing.T) {
	p := New(Options{})

	body := "# Top\n\n## Sub A\n\n### Deep\n\n## Sub B\n"
	res, err := p.Render([]byte(body))
	require.NoError(t, err)

	require.Len(t, res.TOC, 1)
	top := res.TOC[0]
	require.Equal(t, "Top", top.Title)
	require.Equal(t, 1, top.Level)
	require.Len(t, top.Children, 2)
	require.Equal(t, "Sub A", top.Children[0].Title)
	require.Len(t, top.Children[0].Children, 1)
	require.Equal(t, "Deep", top.Children[0].Children[0].Title)
	require.Equal(t, "Sub B", top.Children[1].Title)
}

func TestRender_Parts_SplitOnSeparatorLines(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("First\n\n===\n\nSecond\n"))
	require.NoError(t, err)
	require.Len(t, res.Sections, 2)
	require.Contains(t, res.Sections[0], "<p>First</p>")
	require.Contains(t, res.Sections[1], "<p>Second</p>")
	require.Equal(t, res.Sections[0]+res.Sections[1], res.HTML)
}

func TestRender_PartsSeparatorInsideFence_Ignored(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("```\n===\n```\n"))
	require.NoError(t, err)
	require.Len(t, res.Sections, 1)
	require.Contains(t, res.HTML, "===")
}

func TestRender_HeadingIDsUniqueAcrossSections(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("## Intro\n\n===\n\n## Intro\n"))
	require.NoError(t, err)
	require.Contains(t, res.Sections[0], `id="intro"`)
	require.Contains(t, res.Sections[1], `id="intro-1"`)
}

func TestRender_Admonition_ExpandsToDiv(t *testing.T) {
	p := New(Options{})

	body := "!note: Heads up\n  Inner *text* here.\n\nAfter.\n"
	res, err := p.Render([]byte(body))
	require.NoError(t, err)
	require.Contains(t, res.HTML, `<div class="admonition note">`)
	require.Contains(t, res.HTML, `<span class="admonition-title">Heads up</span>`)
	require.Contains(t, res.HTML, "<em>text</em>", "admonition body keeps markdown semantics")
	require.Contains(t, res.HTML, "</div>")
	require.Contains(t, res.HTML, "<p>After.</p>")
}

func TestRender_AdmonitionWithoutTitle_UsesName(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("!warning\n  Careful.\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, `<span class="admonition-title">Warning</span>`)
}

func TestRender_ImageSyntax_NotAnAdmonition(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("![alt](pic.png)\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, `<img src="pic.png"`)
	require.NotContains(t, res.HTML, "admonition")
}

func TestRender_AliasRewrite_AppliedToLinksAndImages(t *testing.T) {
	p := New(Options{Aliases: map[string]string{
		"docs": "https://example.com/docs",
		"":     "/",
	}})

	body := "[guide](@docs/guide/) and ![logo](@/img/logo.png)\n"
	res, err := p.Render([]byte(body))
	require.NoError(t, err)
	require.Contains(t, res.HTML, `href="https://example.com/docs/guide/"`)
	require.Contains(t, res.HTML, `src="/img/logo.png"`)
}

func TestRewriteURL_UnknownAlias_Passthrough(t *testing.T) {
	got := RewriteURL("@nope/x", map[string]string{"docs": "/d"})
	require.Equal(t, "@nope/x", got)
}

func TestRender_FencedCode_PlainFallbackEscapes(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("```\na < b\n```\n"))
	require.NoError(t, err)
	require.Contains(t, res.HTML, "<pre><code>")
	require.Contains(t, res.HTML, "a &lt; b")
}

func TestRender_FencedCode_HighlightCallbackReceivesTrimmedCode(t *testing.T) {
	var gotCode, gotLang string
	p := New(Options{Highlight: func(code, lang string) (string, error) {
		gotCode, gotLang = code, lang
		return "<pre>HL</pre>", nil
	}})

	body := "```go\n\n# marker note\nx := 1\n```\n"
	res, err := p.Render([]byte(body))
	require.NoError(t, err)
	require.Contains(t, res.HTML, "<pre>HL</pre>")
	require.Equal(t, "go", gotLang)
	require.Equal(t, "x := 1\n", gotCode)
}

func TestRender_HighlightError_Propagates(t *testing.T) {
	boom := errors.New("boom")
	p := New(Options{Highlight: func(string, string) (string, error) {
		return "", boom
	}})

	_, err := p.Render([]byte("```go\nx := 1\n```\n"))
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))
}

func TestRender_Snippet_StopsAtBlockBoundaryPastLimit(t *testing.T) {
	first := strings.Repeat("alpha ", 20)  // ~120 chars
	second := strings.Repeat("beta ", 40)  // ~200 chars
	third := "never included"
	body := first + "\n\n" + second + "\n\n" + third + "\n"

	p := New(Options{SnippetLength: 250})
	res, err := p.Render([]byte(body))
	require.NoError(t, err)
	require.Contains(t, res.Snippet, "alpha")
	require.Contains(t, res.Snippet, "beta")
	require.NotContains(t, res.Snippet, "never included")
	require.GreaterOrEqual(t, len(res.Snippet), 250)
}

func TestRender_SnippetSkipsHeadingsAndCode(t *testing.T) {
	p := New(Options{})

	res, err := p.Render([]byte("# Title\n\n```\ncode\n```\n\nProse only.\n"))
	require.NoError(t, err)
	require.Equal(t, "Prose only.", res.Snippet)
}

func TestTrimMarkers_DropsLeadingBlanksAndMarkerLines(t *testing.T) {
	in := "\n\n# only a marker\ncode line\n#\nmore\n"
	require.Equal(t, "code line\nmore\n", trimMarkers(in))
}

func TestFingerprint_ChangesWithConfiguration(t *testing.T) {
	a := New(Options{Aliases: map[string]string{"docs": "/d"}})
	b := New(Options{Aliases: map[string]string{"docs": "/other"}})
	c := New(Options{Aliases: map[string]string{"docs": "/d"}})

	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	require.Equal(t, a.Fingerprint(), c.Fingerprint())
}
