package markdown

import (
	"strings"

	"github.com/yuin/goldmark/ast"
)

// snippetState accumulates plain text from leading blocks until the limit is
// reached at a block boundary.
type snippetState struct {
	limit int
	sb    strings.Builder
	done  bool
}

func (s *snippetState) String() string {
	return strings.TrimSpace(s.sb.String())
}

// collectSnippet pulls text from top-level paragraphs and blockquotes, in
// document order, stopping after the block that crosses the limit. Headings
// and code blocks are skipped so the snippet reads like prose.
func collectSnippet(doc ast.Node, src []byte, st *snippetState) {
	if st.done {
		return
	}
	for block := doc.FirstChild(); block != nil; block = block.NextSibling() {
		switch block.Kind() {
		case ast.KindParagraph, ast.KindBlockquote:
			txt := inlineText(block, src)
			if txt == "" {
				continue
			}
			if st.sb.Len() > 0 {
				st.sb.WriteByte(' ')
			}
			st.sb.WriteString(txt)
			if st.sb.Len() >= st.limit {
				st.done = true
				return
			}
		}
	}
}

// inlineText flattens inline content with soft breaks as spaces.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			if !t.IsCode() {
				sb.Write(t.Value)
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
