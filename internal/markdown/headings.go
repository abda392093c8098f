package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"

	"tern/internal/slug"
)

type flatHeading struct {
	level int
	title string
	id    string
}

// processHeadings assigns stable IDs to every heading, optionally appends a
// self-link anchor, and returns the flat outline. The seen map deduplicates
// IDs across all sections of one page with -N suffixes.
func processHeadings(doc ast.Node, src []byte, seen map[string]int, anchors bool) []flatHeading {
	var out []flatHeading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		title := textOf(h, src)
		id := headingID(h, title, seen)
		h.SetAttributeString("id", []byte(id))

		if anchors {
			markup := fmt.Sprintf(`<a class="anchor" href="#%s" aria-hidden="true">#</a>`, id)
			s := ast.NewString([]byte(markup))
			s.SetCode(true)
			h.AppendChild(h, s)
		}

		out = append(out, flatHeading{level: h.Level, title: title, id: id})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// headingID keeps an explicit {#id} attribute verbatim, otherwise slugifies
// the heading text and deduplicates against earlier headings.
func headingID(h *ast.Heading, title string, seen map[string]int) string {
	if v, ok := h.AttributeString("id"); ok {
		if b, isBytes := v.([]byte); isBytes && len(b) > 0 {
			id := string(b)
			seen[id]++
			return id
		}
	}

	base := slug.Make(title)
	if base == "" {
		base = "section"
	}
	n := seen[base]
	seen[base] = n + 1
	if n == 0 {
		return base
	}
	for {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if seen[candidate] == 0 {
			seen[candidate] = 1
			return candidate
		}
		n++
	}
}

// textOf flattens the inline text of a node.
func textOf(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
		case *ast.String:
			if !t.IsCode() {
				sb.Write(t.Value)
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// nestToc folds the flat heading list into a tree: each heading becomes a
// child of the nearest preceding heading with a smaller level.
func nestToc(flat []flatHeading) []TocEntry {
	var out []TocEntry
	for _, h := range flat {
		insertToc(&out, h)
	}
	return out
}

func insertToc(entries *[]TocEntry, h flatHeading) {
	if len(*entries) > 0 {
		last := &(*entries)[len(*entries)-1]
		if h.level > last.Level {
			insertToc(&last.Children, h)
			return
		}
	}
	*entries = append(*entries, TocEntry{Title: h.title, Level: h.level, ID: h.id})
}
