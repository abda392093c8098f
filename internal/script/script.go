// Package script embeds a Lua host for build hooks.
//
// A site's plugins/init.lua runs once at load time on a bootstrap engine,
// where site.register and site.page callbacks are live. Render workers get
// their own engines that re-run the same script with registrations muted,
// so template functions declared via tern.filter and tern.func exist in
// every worker without sharing interpreter state across goroutines.
package script

import (
	"errors"
	"fmt"
)

// ErrInit marks failures while loading or executing the hook script.
// Any init failure is fatal for the whole build.
var ErrInit = errors.New("script init failed")

// ErrRuntime marks failures inside a script function called during
// rendering. These are node-scoped, not fatal.
var ErrRuntime = errors.New("script runtime error")

// InitError wraps a script load failure.
type InitError struct {
	Script string
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("script %s: init: %v", e.Script, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func (e *InitError) Is(target error) bool { return target == ErrInit }

// RuntimeError wraps a failure inside a registered script function.
type RuntimeError struct {
	Fn  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("script function %s: %v", e.Fn, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func (e *RuntimeError) Is(target error) bool { return target == ErrRuntime }

// Callbacks is the host-side API exposed to scripts.
type Callbacks interface {
	// DataValue resolves a data file by site-relative path.
	DataValue(path string) (any, error)
	// RegisterComputed publishes a value under site.computed.
	RegisterComputed(name string, value any) error
	// RegisterPage adds a virtual page to the site.
	RegisterPage(path string, meta map[string]any, body string) error
	// Diagnostic routes script log output.
	Diagnostic(level, msg string)
}

// Host holds the hook script and spawns engines from it.
type Host struct {
	source string
	chunk  string
	cb     Callbacks
}

// NewHost wraps the script source. chunk names the script in Lua stack
// traces. An empty source disables scripting; both engine constructors then
// return nil engines.
func NewHost(source []byte, chunk string, cb Callbacks) *Host {
	return &Host{source: string(source), chunk: chunk, cb: cb}
}

// Enabled reports whether a hook script is present.
func (h *Host) Enabled() bool { return h != nil && len(h.source) > 0 }

// Bootstrap spawns the load-time engine with registrations live.
func (h *Host) Bootstrap() (*Engine, error) {
	if !h.Enabled() {
		return nil, nil
	}
	return h.spawn(true)
}

// Worker spawns a render-worker engine with registrations muted.
func (h *Host) Worker() (*Engine, error) {
	if !h.Enabled() {
		return nil, nil
	}
	return h.spawn(false)
}
