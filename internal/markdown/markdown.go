// Package markdown renders page bodies to HTML fragments.
//
// A body passes through a fixed transform chain: admonition expansion,
// section splitting on === lines, alias rewriting on link destinations,
// heading ID assignment with anchors and outline collection, marker-comment
// trimming plus highlighting of fenced code, and a plain-text snippet of the
// leading blocks.
package markdown

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"tern/internal/source"
)

// HighlightFunc produces highlighted HTML for a fenced code block.
type HighlightFunc func(code, lang string) (string, error)

// TocEntry is one heading in the page outline.
type TocEntry struct {
	Title    string     `json:"title"`
	Level    int        `json:"level"`
	ID       string     `json:"id"`
	Children []TocEntry `json:"children,omitempty"`
}

// Result carries everything the markdown stage extracts from a body.
type Result struct {
	HTML     string
	Sections []string
	TOC      []TocEntry
	Snippet  string
}

// Options tune the pipeline.
type Options struct {
	Aliases        map[string]string
	Highlight      HighlightFunc
	SnippetLength  int
	HeadingAnchors bool
}

const defaultSnippetLength = 250

// Pipeline renders markdown bodies. A single Pipeline is safe for concurrent
// use by multiple workers.
type Pipeline struct {
	md         goldmark.Markdown
	aliases    map[string]string
	snippetLen int
	anchors    bool
	highlights bool
}

// New builds a Pipeline from opts.
func New(opts Options) *Pipeline {
	snippetLen := opts.SnippetLength
	if snippetLen <= 0 {
		snippetLen = defaultSnippetLength
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAttribute()),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(
				util.Prioritized(&codeRenderer{highlight: opts.Highlight}, 200),
			),
		),
	)

	return &Pipeline{
		md:         md,
		aliases:    opts.Aliases,
		snippetLen: snippetLen,
		anchors:    opts.HeadingAnchors,
		highlights: opts.Highlight != nil,
	}
}

// Render runs the transform chain over body.
func (p *Pipeline) Render(body []byte) (Result, error) {
	expanded := expandAdmonitions(body)
	parts := splitParts(expanded)

	seen := map[string]int{}
	var flat []flatHeading
	snip := &snippetState{limit: p.snippetLen}
	sections := make([]string, 0, len(parts))

	for _, part := range parts {
		doc := p.md.Parser().Parse(text.NewReader(part))
		rewriteAliases(doc, p.aliases)
		flat = append(flat, processHeadings(doc, part, seen, p.anchors)...)
		collectSnippet(doc, part, snip)

		var buf bytes.Buffer
		if err := p.md.Renderer().Render(&buf, part, doc); err != nil {
			return Result{}, fmt.Errorf("render markdown: %w", err)
		}
		sections = append(sections, buf.String())
	}

	return Result{
		HTML:     strings.Join(sections, ""),
		Sections: sections,
		TOC:      nestToc(flat),
		Snippet:  snip.String(),
	}, nil
}

// Fingerprint identifies the pipeline configuration. Two pipelines with the
// same fingerprint render any given body identically, which makes the value
// usable as the context half of a markdown cache key.
func (p *Pipeline) Fingerprint() uint64 {
	fps := []uint64{source.FingerprintString("markdown/v1")}

	keys := make([]string, 0, len(p.aliases))
	for k := range p.aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fps = append(fps, source.FingerprintString(k), source.FingerprintString(p.aliases[k]))
	}

	fps = append(fps, uint64(p.snippetLen), boolFP(p.anchors), boolFP(p.highlights))
	return source.Combine(fps...)
}

func boolFP(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// splitParts divides a body into sections on standalone === lines.
// Separators inside fenced code are ignored.
func splitParts(src []byte) [][]byte {
	var parts [][]byte
	var cur bytes.Buffer
	inFence := false

	for _, line := range splitLines(src) {
		trimmed := strings.TrimSpace(string(line))
		if isFenceLine(trimmed) {
			inFence = !inFence
			cur.Write(line)
			continue
		}
		if !inFence && isPartsSeparator(trimmed) {
			parts = append(parts, append([]byte(nil), cur.Bytes()...))
			cur.Reset()
			continue
		}
		cur.Write(line)
	}
	parts = append(parts, append([]byte(nil), cur.Bytes()...))
	return parts
}

func isPartsSeparator(trimmed string) bool {
	if len(trimmed) < 3 {
		return false
	}
	for _, r := range trimmed {
		if r != '=' {
			return false
		}
	}
	return true
}

func isFenceLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// splitLines splits after every newline, keeping the newline bytes.
func splitLines(b []byte) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			out = append(out, b)
			break
		}
		out = append(out, b[:i+1])
		b = b[i+1:]
	}
	return out
}
