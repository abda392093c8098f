package build

import (
	"context"
	"log/slog"

	"tern/internal/site"
)

// hostBridge exposes the site model to the hook script. Registrations
// run only on the bootstrap engine before scheduling starts, so the
// loader is still mutable here.
type hostBridge struct {
	loader *site.Loader
	model  *site.Model
	log    *slog.Logger
}

func (h *hostBridge) DataValue(path string) (any, error) {
	return h.model.DataValue(path)
}

func (h *hostBridge) RegisterComputed(name string, value any) error {
	h.model.SetComputed(name, value)
	return nil
}

func (h *hostBridge) RegisterPage(path string, meta map[string]any, body string) error {
	return h.loader.AddVirtualPage(path, meta, body)
}

func (h *hostBridge) Diagnostic(level, msg string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h.log.Log(context.Background(), lvl, msg, slog.String("source", "script"))
}
