// Package build orchestrates one site build end to end: walking the
// source tree, loading the site graph, scheduling node stages across a
// worker pool, writing artifacts and assembling the build report.
package build

import (
	"context"
	"errors"
	"fmt"

	"tern/internal/graph"
	"tern/internal/output"
	"tern/internal/script"
	"tern/internal/source"
	"tern/internal/styles"
)

// ErrorKind classifies a build failure for reporting and policy.
type ErrorKind string

const (
	// KindIO marks a source entry or artifact that could not be read or
	// written. Per-entry, recoverable.
	KindIO ErrorKind = "io"
	// KindCycle marks a dependency cycle. Build-fatal.
	KindCycle ErrorKind = "cycle"
	// KindStage marks a markdown, template, stylesheet or highlight
	// failure attributed to one node. Recoverable under partial success.
	KindStage ErrorKind = "stage"
	// KindScriptInit marks a hook script that failed to load or execute
	// during engine startup. Build-fatal.
	KindScriptInit ErrorKind = "script_init"
	// KindScriptRuntime marks a script function failing during a render.
	// Attributed to one node, recoverable.
	KindScriptRuntime ErrorKind = "script_runtime"
	// KindCollision marks two artifacts claiming one destination.
	// Build-fatal, detected before either write.
	KindCollision ErrorKind = "output_collision"
	// KindCanceled marks work cut short by context cancellation.
	KindCanceled ErrorKind = "canceled"
	// KindInternal marks invariant violations inside the scheduler.
	KindInternal ErrorKind = "internal"
)

// Fatal reports whether this kind aborts the whole build regardless of
// the failure policy.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindCycle, KindScriptInit, KindCollision, KindInternal:
		return true
	default:
		return false
	}
}

// Error attributes a failure to a node and stage where one applies.
// Structural failures leave Node and Stage empty.
type Error struct {
	Kind  ErrorKind
	Node  string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Node != "" && e.Stage != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Node, e.Stage, e.Err)
	case e.Node != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Node, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps an arbitrary error onto the build taxonomy. Unwrapped
// chains are honored, so a stage error wrapping a cancellation counts
// as canceled.
func Classify(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, graph.ErrCycle):
		return KindCycle
	case errors.Is(err, output.ErrCollision):
		return KindCollision
	case errors.Is(err, script.ErrInit):
		return KindScriptInit
	case errors.Is(err, script.ErrRuntime):
		return KindScriptRuntime
	case errors.Is(err, styles.ErrImportCycle):
		return KindStage
	default:
		var ioErr *source.IOError
		if errors.As(err, &ioErr) {
			return KindIO
		}
		return KindStage
	}
}

// nodeError wraps err as a node-attributed Error, classifying it when
// the cause is not already typed.
func nodeError(node, stage string, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{Kind: Classify(err), Node: node, Stage: stage, Err: err}
}

// fatalError wraps a structural failure.
func fatalError(kind ErrorKind, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{Kind: kind, Err: err}
}
