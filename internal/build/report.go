package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Outcome is the typed enumeration of final build result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// reportSchemaVersion bumps when the serialized layout changes shape.
const reportSchemaVersion = 1

// ReportFileJSON and ReportFileText name the persisted report files
// inside the output directory.
const (
	ReportFileJSON = "build-report.json"
	ReportFileText = "build-report.txt"
)

// NodeFailure is one failed graph node in the report.
type NodeFailure struct {
	Node string `json:"node"`
	Kind string `json:"kind"`
	// ErrorKind is the taxonomy classification of the cause.
	ErrorKind ErrorKind `json:"error_kind"`
	Error     string    `json:"error"`
	// Root names the original failing node when this failure arrived by
	// propagation; equals Node for the origin itself.
	Root string `json:"root"`
}

// Report captures everything one build run produced and observed.
// A partial build is still actionable: written artifacts stay on disk
// and every failure is enumerated with its root cause.
type Report struct {
	SchemaVersion int       `json:"schema_version"`
	BuildID       string    `json:"build_id"`
	Outcome       Outcome   `json:"outcome"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`

	Discovered    int `json:"discovered"`
	GraphNodes    int `json:"graph_nodes"`
	Rendered      int `json:"rendered"`
	Written       int `json:"written"`
	Unchanged     int `json:"unchanged"`
	SkippedDrafts int `json:"skipped_drafts"`
	Failed        int `json:"failed"`

	StageDurationsMS map[string]float64 `json:"stage_durations_ms,omitempty"`
	CacheHits        uint64             `json:"cache_hits"`
	CacheMisses      uint64             `json:"cache_misses"`
	CacheStoreHits   uint64             `json:"cache_store_hits"`

	Failures []NodeFailure `json:"failures,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`

	Signature string `json:"signature,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	Version   string `json:"version"`

	// SkipReason is set when the build short-circuited, e.g. an
	// unchanged signature. Empty when the full pipeline ran.
	SkipReason string `json:"skip_reason,omitempty"`
}

func newReport(buildID, ternVersion string) *Report {
	return &Report{
		SchemaVersion:    reportSchemaVersion,
		BuildID:          buildID,
		Start:            time.Now(),
		StageDurationsMS: make(map[string]float64),
		Version:          ternVersion,
	}
}

func (r *Report) finish() {
	if r.End.IsZero() {
		r.End = time.Now()
	}
}

// Duration is the wall-clock build time.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

// deriveOutcome sets Outcome from the recorded failures and warnings.
// An explicit cancellation wins over everything else.
func (r *Report) deriveOutcome(canceled bool) {
	switch {
	case canceled:
		r.Outcome = OutcomeCanceled
	case r.Failed > 0 || hasFatal(r.Failures):
		r.Outcome = OutcomeFailed
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

func hasFatal(failures []NodeFailure) bool {
	for _, f := range failures {
		if f.ErrorKind.Fatal() {
			return true
		}
	}
	return false
}

// Summary returns a one-line human-readable form for logs.
func (r *Report) Summary() string {
	return fmt.Sprintf(
		"outcome=%s nodes=%d rendered=%d written=%d unchanged=%d failed=%d warnings=%d duration=%s",
		r.Outcome, r.GraphNodes, r.Rendered, r.Written, r.Unchanged, r.Failed,
		len(r.Warnings), r.Duration().Truncate(time.Millisecond),
	)
}

// Text renders the multi-line human summary persisted alongside the
// JSON form.
func (r *Report) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "build %s: %s\n", r.BuildID, r.Outcome)
	fmt.Fprintf(&sb, "  %s\n", r.Summary())
	if r.SkipReason != "" {
		fmt.Fprintf(&sb, "  skipped: %s\n", r.SkipReason)
	}
	if len(r.StageDurationsMS) > 0 {
		stages := make([]string, 0, len(r.StageDurationsMS))
		for s := range r.StageDurationsMS {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		for _, s := range stages {
			fmt.Fprintf(&sb, "  stage %-10s %.1fms\n", s, r.StageDurationsMS[s])
		}
	}
	for _, f := range r.Failures {
		if f.Root != "" && f.Root != f.Node {
			fmt.Fprintf(&sb, "  failed %s (%s, via %s): %s\n", f.Node, f.ErrorKind, f.Root, f.Error)
			continue
		}
		fmt.Fprintf(&sb, "  failed %s (%s): %s\n", f.Node, f.ErrorKind, f.Error)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "  warning: %s\n", w)
	}
	return sb.String()
}

// Persist writes the report atomically into dir as JSON plus a text
// summary. Best effort: errors are returned for caller logging but
// never change the build outcome.
func (r *Report) Persist(dir string) error {
	r.finish()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure report dir: %w", err)
	}
	jb, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, ReportFileJSON), append(jb, '\n')); err != nil {
		return err
	}
	return atomicWrite(filepath.Join(dir, ReportFileText), []byte(r.Text()))
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// previousSignature reads the signature of the last persisted report in
// dir. Any problem reads as "no previous build".
func previousSignature(dir string) (sig string, outcome Outcome) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFileJSON))
	if err != nil {
		return "", ""
	}
	var prior Report
	if err := json.Unmarshal(data, &prior); err != nil {
		return "", ""
	}
	return prior.Signature, prior.Outcome
}
