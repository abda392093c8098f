package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel_KnownNames_Map(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseLevel_Unknown_Errors(t *testing.T) {
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestSetup_JSONFormat_EmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("hello", "node", "content/a.md")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "content/a.md", line["node"])
}

func TestSetup_UnknownFormat_Errors(t *testing.T) {
	_, err := Setup(Options{Format: "xml"})
	require.Error(t, err)
}

func TestWithBuildID_ContextAttrs_Carried(t *testing.T) {
	var buf bytes.Buffer
	_, err := Setup(Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	ctx := WithBuildID(context.Background(), "b-1")
	ctx = WithNode(ctx, "content/a.md")
	ctx = WithStage(ctx, "markdown")
	InfoContext(ctx, "rendered", slog.Int("bytes", 12))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "b-1", line["build_id"])
	require.Equal(t, "content/a.md", line["node"])
	require.Equal(t, "markdown", line["stage"])
	require.Equal(t, float64(12), line["bytes"])
}

func TestFromContext_Unset_ZeroValue(t *testing.T) {
	bc := FromContext(context.Background())
	require.Empty(t, bc.BuildID)
	require.Empty(t, bc.Node)
	require.Empty(t, bc.Stage)
}
