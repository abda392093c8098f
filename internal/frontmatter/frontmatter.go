package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies the frontmatter dialect a document opened with.
type Format int

const (
	FormatNone Format = iota
	FormatYAML        // --- delimited
	FormatTOML        // +++ delimited
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return "none"
	}
}

func (f Format) delimiter() string {
	if f == FormatTOML {
		return "+++"
	}
	return "---"
}

// Style captures formatting details needed for stable rewriting.
//
// It intentionally focuses on newline/trailing newline shape and does not
// attempt to preserve original frontmatter formatting.
type Style struct {
	Newline            string
	HasTrailingNewline bool
}

// ErrMissingClosingDelimiter indicates the document started with a frontmatter
// delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("frontmatter start delimiter found but closing delimiter is missing")

// Split separates frontmatter from the Markdown body. YAML frontmatter is
// delimited by `---` lines, TOML frontmatter by `+++` lines.
//
// If the document does not start with a frontmatter delimiter, format is
// FormatNone and body is the full input.
func Split(content []byte) (frontmatter []byte, body []byte, format Format, style Style, err error) {
	style = detectStyle(content)

	nl := style.Newline
	for _, f := range []Format{FormatYAML, FormatTOML} {
		open := []byte(f.delimiter() + nl)
		if !bytes.HasPrefix(content, open) {
			continue
		}

		frontmatterStart := len(open)
		closeLine := []byte(f.delimiter() + nl)
		if bytes.HasPrefix(content[frontmatterStart:], closeLine) {
			bodyStart := frontmatterStart + len(closeLine)
			return []byte{}, content[bodyStart:], f, style, nil
		}

		closeSeq := []byte(nl + f.delimiter() + nl)
		idx := bytes.Index(content[frontmatterStart:], closeSeq)
		if idx < 0 {
			// A final unterminated "---" line still counts as closed.
			tail := []byte(nl + f.delimiter())
			if bytes.HasSuffix(content, tail) {
				end := len(content) - len(tail) + len(nl)
				return content[frontmatterStart:end], []byte{}, f, style, nil
			}
			return nil, nil, FormatNone, style, ErrMissingClosingDelimiter
		}

		frontmatterEnd := frontmatterStart + idx + len(nl)
		bodyStart := frontmatterStart + idx + len(closeSeq)
		return content[frontmatterStart:frontmatterEnd], content[bodyStart:], f, style, nil
	}

	return nil, content, FormatNone, style, nil
}

// Join reassembles a document from raw frontmatter and body.
//
// If format is FormatNone, Join returns body as-is. Otherwise Join emits the
// frontmatter using the format's delimiters and the newline style captured in
// Style.
func Join(frontmatter []byte, body []byte, format Format, style Style) []byte {
	if format == FormatNone {
		return body
	}

	nl := style.Newline
	if nl == "" {
		nl = "\n"
	}

	open := []byte(format.delimiter() + nl)
	closing := []byte(format.delimiter() + nl)

	out := make([]byte, 0, len(open)+len(frontmatter)+len(closing)+len(body))
	out = append(out, open...)
	out = append(out, frontmatter...)
	out = append(out, closing...)
	out = append(out, body...)
	return out
}

// Parse decodes raw frontmatter (without delimiters) into a map.
func Parse(frontmatter []byte, format Format) (map[string]any, error) {
	if len(frontmatter) == 0 || format == FormatNone {
		return map[string]any{}, nil
	}

	var fields map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(frontmatter, &fields); err != nil {
			return nil, fmt.Errorf("parse yaml frontmatter: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(frontmatter, &fields); err != nil {
			return nil, fmt.Errorf("parse toml frontmatter: %w", err)
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Extract is the common Split+Parse path: it returns the parsed fields and the
// remaining body.
func Extract(content []byte) (map[string]any, []byte, error) {
	fm, body, format, _, err := Split(content)
	if err != nil {
		return nil, nil, err
	}
	fields, err := Parse(fm, format)
	if err != nil {
		return nil, nil, err
	}
	return fields, body, nil
}

func detectStyle(content []byte) Style {
	newline := "\n"
	for i := 0; i+1 < len(content); i++ {
		if content[i] == '\r' && content[i+1] == '\n' {
			newline = "\r\n"
			break
		}
		if content[i] == '\n' {
			newline = "\n"
			break
		}
	}

	hasTrailingNewline := len(content) > 0 && (content[len(content)-1] == '\n')

	return Style{
		Newline:            newline,
		HasTrailingNewline: hasTrailingNewline,
	}
}
