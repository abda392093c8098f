package styles

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mapResolver(files map[string]string) Resolver {
	return func(path string) ([]byte, bool) {
		src, ok := files[path]
		return []byte(src), ok
	}
}

func TestCompile_NoImports_Minifies(t *testing.T) {
	c := NewCompiler(mapResolver(nil), true)

	out, err := c.Compile("site.css", []byte("body {  color : red ; }\n"))
	require.NoError(t, err)
	require.Equal(t, "body{color:red}", string(out))
}

func TestCompile_InlinesImportsRecursively(t *testing.T) {
	files := map[string]string{
		"base.css":   `@import "colors.css"; h1 { margin: 0; }`,
		"colors.css": `:root { --fg: black; }`,
	}
	c := NewCompiler(mapResolver(files), true)

	out, err := c.Compile("site.css", []byte(`@import "base.css"; body { color: var(--fg); }`))
	require.NoError(t, err)
	require.Contains(t, string(out), "--fg:black")
	require.Contains(t, string(out), "h1{margin:0}")
	require.NotContains(t, string(out), "@import")
}

func TestCompile_ImportRelativeToImporter(t *testing.T) {
	files := map[string]string{
		"theme/base.css":       `@import "parts/type.css"; body { margin: 0; }`,
		"theme/parts/type.css": `p { line-height: 1.5; }`,
	}
	c := NewCompiler(mapResolver(files), true)

	out, err := c.Compile("theme/base.css", []byte(files["theme/base.css"]))
	require.NoError(t, err)
	require.Contains(t, string(out), "line-height:1.5")
}

func TestCompile_DiamondImport_InlinesOnce(t *testing.T) {
	files := map[string]string{
		"base.css":   `@import "vars.css"; h1 { margin: 0; }`,
		"layout.css": `@import "vars.css"; main { padding: 0; }`,
		"vars.css":   `:root { --fg: black; }`,
	}
	c := NewCompiler(mapResolver(files), false)

	out, err := c.Compile("site.css", []byte(`@import "base.css"; @import "layout.css";`))
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(out), "--fg: black"))
	require.Contains(t, string(out), "h1 { margin: 0; }")
	require.Contains(t, string(out), "main { padding: 0; }")
}

func TestCompile_ImportCycle_Errors(t *testing.T) {
	files := map[string]string{
		"a.css": `@import "b.css";`,
		"b.css": `@import "a.css";`,
	}
	c := NewCompiler(mapResolver(files), true)

	_, err := c.Compile("a.css", []byte(files["a.css"]))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrImportCycle))
}

func TestCompile_MissingImport_Errors(t *testing.T) {
	c := NewCompiler(mapResolver(nil), true)

	_, err := c.Compile("site.css", []byte(`@import "gone.css";`))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrImportNotFound))
}

func TestCompile_MinifyDisabled_KeepsSource(t *testing.T) {
	c := NewCompiler(mapResolver(nil), false)

	out, err := c.Compile("site.css", []byte("body { color: red; }\n"))
	require.NoError(t, err)
	require.Equal(t, "body { color: red; }\n", string(out))
}

func TestClosure_CollectsTransitiveImports(t *testing.T) {
	files := map[string]string{
		"base.css":   `@import "colors.css";`,
		"colors.css": `:root {}`,
	}

	got := Closure("site.css", []byte(`@import "base.css";`), mapResolver(files))
	require.Equal(t, []string{"base.css", "colors.css"}, got)
}

func TestClosure_CycleTerminates(t *testing.T) {
	files := map[string]string{
		"a.css": `@import "b.css";`,
		"b.css": `@import "a.css";`,
	}

	got := Closure("a.css", []byte(files["a.css"]), mapResolver(files))
	require.Equal(t, []string{"b.css"}, got)
}

func TestOutputName_SassVariantsBecomeCSS(t *testing.T) {
	require.Equal(t, "css/site.css", OutputName("css/site.scss"))
	require.Equal(t, "main.css", OutputName("main.sass"))
	require.Equal(t, "plain.css", OutputName("plain.css"))
	require.Equal(t, "logo.png", OutputName("logo.png"))
}
