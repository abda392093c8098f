package build

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"tern/internal/graph"
	"tern/internal/output"
	"tern/internal/script"
	"tern/internal/source"
	"tern/internal/styles"
)

func TestClassify_MapsCausesToKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", context.DeadlineExceeded, KindCanceled},
		{"wrapped cancellation", fmt.Errorf("render: %w", context.Canceled), KindCanceled},
		{"cycle sentinel", graph.ErrCycle, KindCycle},
		{"cycle typed", &graph.CycleError{From: "a", Path: []string{"a", "b", "a"}}, KindCycle},
		{"collision sentinel", output.ErrCollision, KindCollision},
		{"collision typed", &output.CollisionError{Dest: "x/index.html", First: "a", Next: "b"}, KindCollision},
		{"script init", &script.InitError{Script: "plugins/init.lua", Err: errors.New("boom")}, KindScriptInit},
		{"script runtime", &script.RuntimeError{Fn: "shout", Err: errors.New("boom")}, KindScriptRuntime},
		{"import cycle is a stage failure", styles.ErrImportCycle, KindStage},
		{"io", &source.IOError{Path: "content/a.md", Op: "read", Err: errors.New("denied")}, KindIO},
		{"wrapped io", fmt.Errorf("walk: %w", &source.IOError{Path: "x", Op: "read", Err: errors.New("gone")}), KindIO},
		{"untyped defaults to stage", errors.New("template: bad pipeline"), KindStage},
		{"typed build error wins", &Error{Kind: KindInternal, Err: errors.New("stall")}, KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestErrorKind_FatalCoversStructuralFailures(t *testing.T) {
	for _, k := range []ErrorKind{KindCycle, KindScriptInit, KindCollision, KindInternal} {
		require.True(t, k.Fatal(), "kind %s", k)
	}
	for _, k := range []ErrorKind{KindIO, KindStage, KindScriptRuntime, KindCanceled} {
		require.False(t, k.Fatal(), "kind %s", k)
	}
}

func TestError_FormatsAttribution(t *testing.T) {
	cause := errors.New("boom")

	full := &Error{Kind: KindStage, Node: "content/a.md", Stage: StageTemplate, Err: cause}
	require.Equal(t, "stage: content/a.md: template: boom", full.Error())

	noStage := &Error{Kind: KindIO, Node: "content/a.md", Err: cause}
	require.Equal(t, "io: content/a.md: boom", noStage.Error())

	structural := &Error{Kind: KindCycle, Err: cause}
	require.Equal(t, "cycle: boom", structural.Error())

	require.ErrorIs(t, full, cause)
}

func TestNodeError_PassesThroughTypedErrors(t *testing.T) {
	typed := &Error{Kind: KindScriptRuntime, Node: "content/a.md", Err: errors.New("boom")}
	require.Same(t, typed, nodeError("content/b.md", StageTemplate, typed))
	require.Same(t, typed, fatalError(KindInternal, fmt.Errorf("wrapped: %w", typed)))

	wrapped := nodeError("content/b.md", StageMarkdown, context.Canceled)
	require.Equal(t, KindCanceled, wrapped.Kind)
	require.Equal(t, "content/b.md", wrapped.Node)
	require.Equal(t, StageMarkdown, wrapped.Stage)
}
