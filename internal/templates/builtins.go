package templates

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"tern/internal/slug"
)

// Builtins returns the helper functions available in every template.
// Argument order favors pipelines: {{ .page.title | upper }},
// {{ .tags | join ", " }}.
func Builtins() template.FuncMap {
	return template.FuncMap{
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
		"trim":     strings.TrimSpace,
		"contains": func(sub, s string) bool { return strings.Contains(s, sub) },
		"replace":  func(old, new, s string) string { return strings.ReplaceAll(s, old, new) },
		"split":    func(sep, s string) []string { return strings.Split(s, sep) },
		"join":     joinFn,
		"safe":     func(s string) string { return s },
		"slugify":  slug.Make,
		"deslug":   slug.Deslug,
		"dict":     dictFn,
		"list":     func(items ...any) []any { return items },
		"get":      getFn,
		"has":      hasFn,
		"default":  defaultFn,
		"now":      time.Now,
		"date":     dateFn,
	}
}

func joinFn(sep string, v any) (string, error) {
	switch items := v.(type) {
	case []string:
		return strings.Join(items, sep), nil
	case []any:
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = fmt.Sprint(it)
		}
		return strings.Join(parts, sep), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("join: cannot join %T", v)
	}
}

func dictFn(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd argument count %d", len(pairs))
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

func getFn(m map[string]any, key string) any {
	return m[key]
}

func hasFn(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func defaultFn(def, v any) any {
	switch t := v.(type) {
	case nil:
		return def
	case string:
		if t == "" {
			return def
		}
	}
	return v
}

func dateFn(layout string, v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(layout), nil
	case string:
		for _, parse := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(parse, t); err == nil {
				return parsed.Format(layout), nil
			}
		}
		return "", fmt.Errorf("date: cannot parse %q", t)
	default:
		return "", fmt.Errorf("date: unsupported value %T", v)
	}
}
