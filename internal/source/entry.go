// Package source discovers and classifies the files of a site tree.
package source

import (
	"fmt"
	"path"
	"strings"

	"tern/internal/intern"
)

// Kind classifies a discovered file by the processing it needs.
type Kind int

const (
	KindNone Kind = iota
	KindPage
	KindTemplate
	KindPartial
	KindStylesheet
	KindData
	KindScript
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindTemplate:
		return "template"
	case KindPartial:
		return "partial"
	case KindStylesheet:
		return "stylesheet"
	case KindData:
		return "data"
	case KindScript:
		return "script"
	case KindAsset:
		return "asset"
	default:
		return "none"
	}
}

// Entry is one discovered source file. Entries are immutable after the
// walk; a failed read yields an Entry with Err set and no content.
type Entry struct {
	// Path is root-relative with forward slashes.
	Path string
	ID   intern.ID
	Kind Kind
	Data []byte
	// Fingerprint is a fast non-cryptographic hash of Data.
	Fingerprint uint64
	Err         error
}

// Failed reports whether this entry could not be read.
func (e Entry) Failed() bool { return e.Err != nil }

// IOError reports a single filesystem entry that could not be read.
// The walk continues past it; the caller decides whether a partial
// walk is fatal.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Top-level site directories recognized by classification.
const (
	DirContent   = "content"
	DirTemplates = "templates"
	DirAssets    = "assets"
	DirData      = "data"
	DirPlugins   = "plugins"
)

// classify maps a root-relative path to its Kind. The second return is
// false for files the walk should drop entirely (hidden entries, files
// outside the recognized site directories).
func classify(rel string) (Kind, bool) {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return KindNone, false
		}
	}
	top, rest, found := strings.Cut(rel, "/")
	if !found {
		// Files directly at the site root (site.yaml, README) are not
		// build inputs.
		return KindNone, false
	}
	ext := strings.ToLower(path.Ext(rel))
	switch top {
	case DirContent:
		switch ext {
		case ".md":
			return KindPage, true
		case ".yaml", ".yml", ".toml", ".json":
			return KindData, true
		default:
			return KindAsset, true
		}
	case DirTemplates:
		if ext != ".html" {
			return KindNone, false
		}
		if strings.HasPrefix(path.Base(rest), "_") || strings.HasPrefix(rest, "partials/") {
			return KindPartial, true
		}
		return KindTemplate, true
	case DirAssets:
		switch ext {
		case ".css", ".scss", ".sass":
			return KindStylesheet, true
		default:
			return KindAsset, true
		}
	case DirData:
		switch ext {
		case ".yaml", ".yml", ".toml", ".json":
			return KindData, true
		default:
			return KindNone, false
		}
	case DirPlugins:
		if ext == ".lua" {
			return KindScript, true
		}
		return KindNone, false
	default:
		return KindNone, false
	}
}
