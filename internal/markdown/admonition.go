package markdown

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"tern/internal/slug"
)

// admonitionPattern matches callout markers such as "!note" or
// "!warning: Mind the gap". Image syntax (![alt](url)) does not match.
var admonitionPattern = regexp.MustCompile(`^!([A-Za-z][A-Za-z0-9_-]*)\s*(?::\s*(.*))?$`)

// expandAdmonitions rewrites callout blocks into div markup before parsing.
// The block body consists of the following lines that are blank or indented
// by two spaces; the indent is stripped so the body stays plain markdown.
// Markers inside fenced code are left untouched.
func expandAdmonitions(src []byte) []byte {
	lines := splitLines(src)
	var out bytes.Buffer
	inFence := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimRight(string(line), "\r\n")

		if isFenceLine(strings.TrimSpace(trimmed)) {
			inFence = !inFence
			out.Write(line)
			continue
		}
		if inFence {
			out.Write(line)
			continue
		}

		m := admonitionPattern.FindStringSubmatch(trimmed)
		if m == nil {
			out.Write(line)
			continue
		}

		name := strings.ToLower(m[1])
		title := strings.TrimSpace(m[2])
		if title == "" {
			title = slug.Deslug(name)
		}

		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			l := strings.TrimRight(string(lines[j]), "\r\n")
			if l == "" {
				body = append(body, "")
				continue
			}
			if strings.HasPrefix(l, "  ") {
				body = append(body, strings.TrimPrefix(l, "  "))
				continue
			}
			break
		}
		i = j - 1
		for len(body) > 0 && body[len(body)-1] == "" {
			body = body[:len(body)-1]
		}

		out.WriteString(`<div class="admonition ` + name + `">` + "\n")
		out.WriteString(`<span class="admonition-title">` + html.EscapeString(title) + `</span>` + "\n")
		out.WriteString("\n")
		for _, l := range body {
			out.WriteString(l)
			out.WriteString("\n")
		}
		if len(body) > 0 {
			out.WriteString("\n")
		}
		// Trailing blank line closes the raw HTML block so following
		// markdown is parsed normally.
		out.WriteString("</div>\n\n")
	}

	return out.Bytes()
}
