package linkcheck

import (
	"io"

	"golang.org/x/net/html"
)

// Ref is one link-like reference found in a rendered page.
type Ref struct {
	URL  string
	Tag  string
	Attr string
}

// ExtractRefs parses HTML and collects every reference worth checking:
// anchors, images, stylesheets, scripts and media sources. The parser
// is tolerant, so malformed markup still yields whatever it can.
func ExtractRefs(r io.Reader) ([]Ref, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var refs []Ref
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if ref, ok := elementRef(n); ok {
				refs = append(refs, ref)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

func elementRef(n *html.Node) (Ref, bool) {
	var attr string
	switch n.Data {
	case "a", "link":
		attr = "href"
	case "img", "script", "iframe", "video", "audio", "source":
		attr = "src"
	default:
		return Ref{}, false
	}
	val := getAttr(n, attr)
	if val == "" {
		return Ref{}, false
	}
	return Ref{URL: val, Tag: n.Data, Attr: attr}, true
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
