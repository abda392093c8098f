// Package linkcheck verifies references in rendered HTML against the
// output tree. Internal targets must exist on disk; external URLs are
// checked for well-formedness only. No network traffic is involved.
package linkcheck

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Issue is one broken reference.
type Issue struct {
	// Page is the output-relative file holding the reference.
	Page   string
	URL    string
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Page, i.URL, i.Reason)
}

// Result summarizes one verification pass.
type Result struct {
	Pages   int
	Checked int
	Issues  []Issue
}

// Verify scans every .html file under dir and checks its references.
// base is the site base path that absolute internal URLs are rooted at.
func Verify(dir, base string) (*Result, error) {
	targets, pages, err := collectOutputs(dir)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, page := range pages {
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(page)))
		if err != nil {
			return nil, err
		}
		refs, perr := ExtractRefs(f)
		f.Close()
		if perr != nil {
			res.Issues = append(res.Issues, Issue{Page: page, Reason: "unreadable html: " + perr.Error()})
			continue
		}
		res.Pages++
		for _, ref := range refs {
			if skipRef(ref.URL) {
				continue
			}
			res.Checked++
			if issue, bad := checkRef(ref, page, base, targets); bad {
				res.Issues = append(res.Issues, issue)
			}
		}
	}
	sort.Slice(res.Issues, func(i, j int) bool {
		if res.Issues[i].Page != res.Issues[j].Page {
			return res.Issues[i].Page < res.Issues[j].Page
		}
		return res.Issues[i].URL < res.Issues[j].URL
	})
	return res, nil
}

// collectOutputs indexes every file under dir by slash-relative path
// and lists the HTML pages to scan.
func collectOutputs(dir string) (map[string]bool, []string, error) {
	targets := make(map[string]bool)
	var pages []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(dir, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		targets[rel] = true
		if strings.HasSuffix(rel, ".html") {
			pages = append(pages, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(pages)
	return targets, pages, nil
}

// skipRef filters references that never resolve to an output file:
// in-page fragments and non-navigational schemes.
func skipRef(raw string) bool {
	if raw == "" || strings.HasPrefix(raw, "#") {
		return true
	}
	for _, scheme := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(raw, scheme) {
			return true
		}
	}
	return false
}

func checkRef(ref Ref, page, base string, targets map[string]bool) (Issue, bool) {
	u, err := url.Parse(ref.URL)
	if err != nil {
		return Issue{Page: page, URL: ref.URL, Reason: "malformed url"}, true
	}
	// External references pass on well-formedness alone.
	if u.Scheme != "" || u.Host != "" {
		return Issue{}, false
	}
	// Query-only or fragment-only references point at the page itself.
	if u.Path == "" {
		return Issue{}, false
	}

	rel, ok := resolveInternal(u.Path, page, base)
	if !ok {
		// Absolute path outside the configured base; not ours to verify.
		return Issue{}, false
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return Issue{Page: page, URL: ref.URL, Reason: "escapes output tree"}, true
	}
	if !targetExists(rel, targets) {
		return Issue{Page: page, URL: ref.URL, Reason: "target not found"}, true
	}
	return Issue{}, false
}

// resolveInternal maps a URL path to an output-relative file path.
// Absolute paths are rooted at base; relative paths resolve against the
// referencing page's directory.
func resolveInternal(p, page, base string) (string, bool) {
	if strings.HasPrefix(p, "/") {
		switch {
		case base == "" || base == "/":
			p = strings.TrimPrefix(p, "/")
		case p == base:
			p = ""
		case strings.HasPrefix(p, base+"/"):
			p = p[len(base)+1:]
		default:
			return "", false
		}
	} else {
		p = path.Join(path.Dir(page), p)
	}
	p = path.Clean(p)
	if p == "." {
		p = ""
	}
	return p, true
}

// targetExists accepts both file targets and directory URLs served as
// their index.html.
func targetExists(rel string, targets map[string]bool) bool {
	if rel == "" {
		return targets["index.html"]
	}
	if targets[rel] {
		return true
	}
	return targets[path.Join(rel, "index.html")]
}
