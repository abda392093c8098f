package markdown

import (
	"strings"

	"github.com/yuin/goldmark/ast"
)

// rewriteAliases expands @alias/ prefixes in link and image destinations.
func rewriteAliases(doc ast.Node, aliases map[string]string) {
	if len(aliases) == 0 {
		return
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Link:
			t.Destination = []byte(RewriteURL(string(t.Destination), aliases))
		case *ast.Image:
			t.Destination = []byte(RewriteURL(string(t.Destination), aliases))
		}
		return ast.WalkContinue, nil
	})
}

// RewriteURL expands a destination of the form @name/rest using the alias
// table. The empty alias name covers root-relative @/rest destinations.
// Unknown aliases pass through untouched.
func RewriteURL(dest string, aliases map[string]string) string {
	if !strings.HasPrefix(dest, "@") {
		return dest
	}
	name, rest, _ := strings.Cut(dest[1:], "/")
	prefix, ok := aliases[name]
	if !ok {
		return dest
	}
	if rest == "" {
		return prefix
	}
	return strings.TrimSuffix(prefix, "/") + "/" + rest
}
