// Package highlight renders source code to classed HTML via chroma.
package highlight

import (
	"fmt"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Result holds the highlighted markup and the lexer that produced it.
type Result struct {
	HTML     string
	Language string // resolved lexer name, "" when no lexer matched
}

// Options configure the HTML formatter.
type Options struct {
	LineNumbers bool
	Style       string // chroma style name used for class derivation
}

// Renderer turns code snippets into classed HTML. Unknown languages fall
// back to an escaped plain <pre> block and never produce an error.
type Renderer struct {
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

// New builds a Renderer. The emitted markup carries CSS classes only, no
// inline styles, so a site stylesheet controls the palette.
func New(opts Options) *Renderer {
	fopts := []chromahtml.Option{
		chromahtml.WithClasses(true),
	}
	if opts.LineNumbers {
		fopts = append(fopts,
			chromahtml.WithLineNumbers(true),
			chromahtml.LineNumbersInTable(true),
		)
	}
	style := styles.Get(opts.Style)
	if style == nil {
		style = styles.Fallback
	}
	return &Renderer{
		formatter: chromahtml.New(fopts...),
		style:     style,
	}
}

// Render highlights code using the lexer registered for lang. An unknown or
// empty lang yields a plain passthrough block.
func (r *Renderer) Render(code, lang string) (Result, error) {
	lexer := lexers.Get(lang)
	if lexer == nil {
		return Result{HTML: Plain(code, lang)}, nil
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return Result{}, fmt.Errorf("tokenise %s snippet: %w", lang, err)
	}

	var sb strings.Builder
	if err := r.formatter.Format(&sb, r.style, iterator); err != nil {
		return Result{}, fmt.Errorf("format %s snippet: %w", lang, err)
	}
	return Result{HTML: sb.String(), Language: lexer.Config().Name}, nil
}

// Stylesheet emits the CSS rules matching the classed output, so a site can
// inline them instead of shipping a hand-written palette.
func (r *Renderer) Stylesheet() (string, error) {
	var sb strings.Builder
	if err := r.formatter.WriteCSS(&sb, r.style); err != nil {
		return "", fmt.Errorf("write highlight css: %w", err)
	}
	return sb.String(), nil
}

// Plain wraps code in an escaped <pre> block without token classification.
func Plain(code, lang string) string {
	class := ""
	if lang != "" {
		class = fmt.Sprintf(" class=%q", "language-"+lang)
	}
	return fmt.Sprintf("<pre><code%s>%s</code></pre>\n", class, html.EscapeString(code))
}
