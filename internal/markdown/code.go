package markdown

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	"tern/internal/highlight"
)

// codeRenderer replaces the default code block renderers: block content is
// cleaned of marker comments and routed through the highlight callback.
type codeRenderer struct {
	highlight HighlightFunc
}

func (r *codeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFenced)
	reg.Register(ast.KindCodeBlock, r.renderIndented)
}

func (r *codeRenderer) renderFenced(w util.BufWriter, src []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	lang := ""
	if l := n.Language(src); l != nil {
		lang = string(l)
	}
	return r.emit(w, trimMarkers(blockText(n, src)), lang)
}

func (r *codeRenderer) renderIndented(w util.BufWriter, src []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	return r.emit(w, trimMarkers(blockText(node, src)), "")
}

func (r *codeRenderer) emit(w util.BufWriter, code, lang string) (ast.WalkStatus, error) {
	if lang != "" && r.highlight != nil {
		out, err := r.highlight(code, lang)
		if err != nil {
			return ast.WalkStop, err
		}
		if _, err := w.WriteString(out); err != nil {
			return ast.WalkStop, err
		}
		return ast.WalkSkipChildren, nil
	}
	if _, err := w.WriteString(highlight.Plain(code, lang)); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

func blockText(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

// trimMarkers drops leading blank lines and lines that are marker comments
// ("# " prefixed or a bare "#"), the convention for annotating snippets that
// should not render.
func trimMarkers(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	started := false
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if !started && t == "" {
			continue
		}
		if t == "#" || strings.HasPrefix(t, "# ") {
			continue
		}
		started = true
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
