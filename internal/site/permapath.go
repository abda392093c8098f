package site

import (
	"fmt"
	"path"
	"strings"

	"tern/internal/styles"
)

// permapath maps a page to its output-relative destination and its URL
// under base. Datums map to neither. Frontmatter url:/permapath: keys
// override both; slug overrides are applied by the caller before this.
func permapath(kind PageKind, collectionDir, slug, base string, meta map[string]any) (dest, url string, err error) {
	if v, ok := metaString(meta, "permapath"); ok {
		dest = strings.TrimPrefix(path.Clean(v), "/")
		if dest == "" || dest == "." {
			return "", "", fmt.Errorf("permapath override %q resolves to nothing", v)
		}
		return dest, urlFromPermapath(dest, base), nil
	}
	if v, ok := metaString(meta, "url"); ok {
		dest, err = permapathFromURL(v)
		if err != nil {
			return "", "", err
		}
		u := joinURL(base, v)
		if trailingOf(v) == "/" {
			u = ensureTrailingSlash(u)
		}
		return dest, u, nil
	}

	switch kind {
	case PageIndex:
		dest = path.Join(collectionDir, "index.html")
		url = ensureTrailingSlash(joinURL(base, collectionDir))
	case PageItem:
		dest = path.Join(collectionDir, slug, "index.html")
		url = ensureTrailingSlash(joinURL(base, collectionDir, slug))
	case PageDatum:
		// Context only, no artifact.
	}
	return dest, url, nil
}

// permapathFromURL converts a site-relative URL override into an output
// path: a trailing slash means a directory index, anything else is
// taken as a literal file path.
func permapathFromURL(url string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(url), "/")
	if strings.HasSuffix(trimmed, "/") || trimmed == "" {
		return path.Join(strings.TrimSuffix(trimmed, "/"), "index.html"), nil
	}
	if strings.Contains(path.Base(trimmed), ".") {
		return path.Clean(trimmed), nil
	}
	return path.Join(trimmed, "index.html"), nil
}

func urlFromPermapath(dest, base string) string {
	if path.Base(dest) == "index.html" {
		dir := path.Dir(dest)
		if dir == "." {
			dir = ""
		}
		return ensureTrailingSlash(joinURL(base, dir))
	}
	return joinURL(base, dest)
}

func trailingOf(url string) string {
	if strings.HasSuffix(url, "/") || url == "" {
		return "/"
	}
	if !strings.Contains(path.Base(url), ".") {
		return "/"
	}
	return ""
}

// assetDest maps a source path onto the output tree by stripping its
// top-level directory: assets/img/x.png lands at img/x.png, a
// non-rendered content file keeps its content-relative path.
func assetDest(rel string) string {
	_, rest, found := strings.Cut(rel, "/")
	if !found {
		return rel
	}
	return rest
}

// stylesheetDest is assetDest with the extension swapped to .css.
func stylesheetDest(rel string) string {
	return styles.OutputName(assetDest(rel))
}

func metaString(meta map[string]any, key string) (string, bool) {
	if meta == nil {
		return "", false
	}
	v, ok := meta[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}
