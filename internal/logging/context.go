package logging

import (
	"context"
	"log/slog"
)

// BuildContext holds the fields every log line of a build run should carry.
type BuildContext struct {
	BuildID string
	Node    string
	Stage   string
}

type buildContextKeyType string

const buildContextKey buildContextKeyType = "build-context"

// WithBuildID attaches a build ID to the context.
func WithBuildID(ctx context.Context, buildID string) context.Context {
	bc := FromContext(ctx)
	bc.BuildID = buildID
	return context.WithValue(ctx, buildContextKey, bc)
}

// WithNode attaches the node currently being rendered to the context.
func WithNode(ctx context.Context, node string) context.Context {
	bc := FromContext(ctx)
	bc.Node = node
	return context.WithValue(ctx, buildContextKey, bc)
}

// WithStage attaches the active stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	bc := FromContext(ctx)
	bc.Stage = stage
	return context.WithValue(ctx, buildContextKey, bc)
}

// FromContext retrieves the BuildContext, zero valued when unset.
func FromContext(ctx context.Context) BuildContext {
	if bc, ok := ctx.Value(buildContextKey).(BuildContext); ok {
		return bc
	}
	return BuildContext{}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	bc := FromContext(ctx)
	attrs := []slog.Attr{}
	if bc.BuildID != "" {
		attrs = append(attrs, slog.String("build_id", bc.BuildID))
	}
	if bc.Node != "" {
		attrs = append(attrs, slog.String("node", bc.Node))
	}
	if bc.Stage != "" {
		attrs = append(attrs, slog.String("stage", bc.Stage))
	}
	return attrs
}

// InfoContext logs at info level with the context's build fields prepended.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelInfo, msg, append(contextAttrs(ctx), attrs...)...)
}

// WarnContext logs at warn level with the context's build fields prepended.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelWarn, msg, append(contextAttrs(ctx), attrs...)...)
}

// ErrorContext logs at error level with the context's build fields prepended.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelError, msg, append(contextAttrs(ctx), attrs...)...)
}

// DebugContext logs at debug level with the context's build fields prepended.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.LogAttrs(ctx, slog.LevelDebug, msg, append(contextAttrs(ctx), attrs...)...)
}
