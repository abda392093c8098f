package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"tern/internal/cache"
	"tern/internal/config"
	"tern/internal/graph"
	"tern/internal/highlight"
	"tern/internal/intern"
	"tern/internal/linkcheck"
	"tern/internal/logfields"
	"tern/internal/markdown"
	"tern/internal/metrics"
	"tern/internal/output"
	"tern/internal/script"
	"tern/internal/site"
	"tern/internal/source"
	"tern/internal/styles"
	"tern/internal/templates"
	"tern/internal/version"
)

// highlightSheet is the destination of the shared syntax palette.
const highlightSheet = "highlight.css"

// SkipUnchanged is the report skip reason for a build whose signature
// matched the previous successful run.
const SkipUnchanged = "signature_unchanged"

// skipCheckOnly marks reports produced by Check, which never renders.
const skipCheckOnly = "check_only"

// Options configure a Builder.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Metrics defaults to the no-op recorder.
	Metrics metrics.Recorder
	// Revision and Dirty describe the source checkout feeding the build
	// signature; both stay zero outside a repository.
	Revision string
	Dirty    bool
}

// Builder builds one site. It is long-lived: the stage cache and the
// highlighter survive across Build calls, which is what makes
// watch-mode rebuilds incremental.
type Builder struct {
	cfg         *config.Config
	log         *slog.Logger
	metrics     metrics.Recorder
	cache       *cache.Cache
	highlighter *highlight.Renderer
	revision    string
	dirty       bool
}

// NewBuilder wires a Builder for the given site. When a cache path is
// configured the stage cache is backed by SQLite and outlives the
// process.
func NewBuilder(opts Options) (*Builder, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("build: nil config")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	var store cache.Store
	if cfg.Cache.Path != "" {
		p := cfg.Cache.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.SiteDir, p)
		}
		s, err := cache.NewSQLiteStore(p)
		if err != nil {
			return nil, fmt.Errorf("open stage cache: %w", err)
		}
		store = s
	}

	b := &Builder{
		cfg:      cfg,
		log:      log,
		metrics:  rec,
		cache:    cache.NewWithStore(store),
		revision: opts.Revision,
		dirty:    opts.Dirty,
	}
	if cfg.Highlight.Enabled {
		b.highlighter = highlight.New(highlight.Options{
			LineNumbers: cfg.Highlight.LineNumbers,
			Style:       cfg.Highlight.Style,
		})
	}
	return b, nil
}

// Close releases the stage cache store.
func (b *Builder) Close() error { return b.cache.Close() }

func (b *Builder) workerCount() int {
	if b.cfg.Workers > 0 {
		return b.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// buildState carries everything one build run needs. A fresh state per
// run keeps Build reentrant while the Builder's cache persists.
type buildState struct {
	b   *Builder
	log *slog.Logger

	g      *graph.Graph
	loader *site.Loader
	model  *site.Model
	writer *output.Writer

	pipeline *markdown.Pipeline
	pipeFP   uint64
	compiler *styles.Compiler
	pool     *script.Pool

	stats   *counters
	workers []workerState
	sheets  map[graph.NodeID]*site.Stylesheet
	assets  map[graph.NodeID]*site.Asset

	entries   []source.Entry
	signature string
	report    *Report
}

// Build runs one complete build. A report is always returned, also on
// failure; the error mirrors the report outcome so callers can branch
// without re-deriving it.
func (b *Builder) Build(ctx context.Context, buildID string) (*Report, error) {
	log := b.log.With(logfields.BuildID(buildID))
	report := newReport(buildID, version.Version)
	report.Revision, report.Dirty = b.revision, b.dirty
	cacheBefore := b.cache.Stats()

	log.Info("build started", logfields.Path(b.cfg.SiteDir))

	st, prepErr := b.prepare(ctx, log, report, true)
	var schedErr error
	if prepErr == nil && report.SkipReason == "" {
		workers := len(st.workers)
		b.metrics.SetWorkers(workers)
		sched := &scheduler{g: st.g, workers: workers, failFast: b.cfg.FailFast, log: log, render: st.renderNode}
		schedErr = sched.run(ctx)
		if schedErr == nil && b.highlighter != nil {
			b.writeHighlightSheet(st, report)
		}
	}
	return b.conclude(log, report, st, cacheBefore, prepErr, schedErr, true)
}

// Check walks and loads the site without rendering or writing any
// artifact. It surfaces unreadable sources, metadata failures,
// dependency cycles, script init errors, template parse errors and
// destination collisions.
func (b *Builder) Check(ctx context.Context, buildID string) (*Report, error) {
	log := b.log.With(logfields.BuildID(buildID))
	report := newReport(buildID, version.Version)
	report.Revision, report.Dirty = b.revision, b.dirty
	cacheBefore := b.cache.Stats()

	st, err := b.prepare(ctx, log, report, false)
	report.SkipReason = skipCheckOnly
	return b.conclude(log, report, st, cacheBefore, err, nil, false)
}

// prepare runs every pre-render phase: walk, load, signature check,
// script bootstrap, template validation and destination reservation.
// Errors from prepare abort the build before any artifact is written.
func (b *Builder) prepare(ctx context.Context, log *slog.Logger, report *Report, skipUnchanged bool) (*buildState, error) {
	cfg := b.cfg
	st := &buildState{
		b:       b,
		log:     log,
		stats:   newCounters(),
		report:  report,
		workers: make([]workerState, b.workerCount()),
	}

	walker := &source.Walker{
		Root:     cfg.SiteDir,
		Interner: intern.New(),
		Skip:     walkSkips(cfg),
	}
	entries, err := walker.Walk(ctx)
	if err != nil {
		return st, fatalError(Classify(err), err)
	}
	st.entries = entries
	report.Discovered = len(entries)

	st.g = graph.New()
	st.loader = site.NewLoader(cfg, st.g)
	model, issues, err := st.loader.Load(entries)
	if err != nil {
		return st, fatalError(Classify(err), err)
	}
	st.model = model
	for _, issue := range issues {
		report.Warnings = append(report.Warnings, issue.Error())
	}

	st.signature = computeSignature(entries, model, cfg, b.revision, b.dirty)
	report.Signature = st.signature
	if skipUnchanged {
		prevSig, prevOutcome := previousSignature(cfg.OutputDir())
		if prevSig == st.signature && prevOutcome == OutcomeSuccess {
			report.SkipReason = SkipUnchanged
			log.Info("build skipped", slog.String("reason", SkipUnchanged))
			return st, nil
		}
	}

	st.pipeline = markdown.New(markdown.Options{
		Aliases:        cfg.ResolvedAliases(),
		Highlight:      st.highlightFunc(),
		HeadingAnchors: true,
	})
	// Line numbers change the emitted markup, so they invalidate cached
	// markdown output along with the pipeline options.
	st.pipeFP = source.Combine(st.pipeline.Fingerprint(), boolFP(cfg.Highlight.LineNumbers))

	scriptSrc := model.ScriptSource
	if !cfg.Scripts.Enabled {
		scriptSrc = nil
	}
	scriptName := path.Join(source.DirPlugins, "init.lua")
	host := script.NewHost(scriptSrc, scriptName, &hostBridge{loader: st.loader, model: model, log: log})
	boot, err := host.Bootstrap()
	if err != nil {
		return st, fatalError(KindScriptInit, err)
	}
	validateFuncs := templates.Builtins()
	if boot != nil {
		for _, fn := range boot.FuncNames() {
			if _, exists := validateFuncs[fn]; exists {
				boot.Close()
				return st, fatalError(KindScriptInit, &script.InitError{
					Script: scriptName,
					Err:    fmt.Errorf("function %q collides with a built-in", fn),
				})
			}
		}
		for name, fn := range boot.TemplateFuncs() {
			validateFuncs[name] = fn
		}
		boot.Close()
	}
	st.pool = script.NewPool(host, len(st.workers))

	// Parse problems in any template surface here, before a single
	// artifact is produced.
	if _, err := model.Engine.Renderer(validateFuncs); err != nil {
		return st, &Error{Kind: KindStage, Stage: StageTemplate, Err: err}
	}

	st.writer = output.NewWriter(cfg.OutputDir())
	if err := st.reserveAll(); err != nil {
		return st, err
	}

	st.compiler = styles.NewCompiler(model.StyleSource, cfg.Styles.Minify)
	st.sheets = make(map[graph.NodeID]*site.Stylesheet, len(model.Stylesheets()))
	for _, sh := range model.Stylesheets() {
		st.sheets[sh.Node] = sh
	}
	st.assets = make(map[graph.NodeID]*site.Asset, len(model.Assets()))
	for _, a := range model.Assets() {
		st.assets[a.Node] = a
	}

	b.metrics.SetGraphNodes(st.g.Len())
	log.Info("site loaded",
		logfields.Count(len(entries)),
		slog.Int("nodes", st.g.Len()),
		slog.Int("pages", len(model.Pages())),
	)
	return st, nil
}

// reserveAll claims every artifact destination before any render
// starts, so a collision aborts the build with zero bytes written.
func (st *buildState) reserveAll() error {
	cfg := st.b.cfg
	for _, p := range st.model.Pages() {
		if p.Kind == site.PageDatum || p.Permapath == "" {
			continue
		}
		if p.Draft && !cfg.Drafts {
			continue
		}
		if err := st.writer.Reserve(p.Permapath, st.nodeName(p.Node)); err != nil {
			return fatalError(KindCollision, err)
		}
	}
	for _, sh := range st.model.Stylesheets() {
		if err := st.writer.Reserve(sh.Dest, st.nodeName(sh.Node)); err != nil {
			return fatalError(KindCollision, err)
		}
	}
	for _, a := range st.model.Assets() {
		if err := st.writer.Reserve(a.Dest, st.nodeName(a.Node)); err != nil {
			return fatalError(KindCollision, err)
		}
	}
	if cfg.Highlight.Enabled {
		if err := st.writer.Reserve(highlightSheet, "highlight"); err != nil {
			return fatalError(KindCollision, err)
		}
	}
	return nil
}

func (st *buildState) nodeName(id graph.NodeID) string {
	if info, ok := st.g.Node(id); ok {
		return info.Name
	}
	return fmt.Sprintf("node %d", id)
}

func (b *Builder) writeHighlightSheet(st *buildState, report *Report) {
	css, err := b.highlighter.Stylesheet()
	if err != nil {
		report.Warnings = append(report.Warnings, "highlight stylesheet: "+err.Error())
		return
	}
	wrote, err := st.writer.Write(highlightSheet, []byte(css))
	if err != nil {
		report.Warnings = append(report.Warnings, "highlight stylesheet: "+err.Error())
		return
	}
	st.recordArtifact(wrote)
}

// conclude folds counters, graph failures and cache stats into the
// report, derives the outcome, optionally verifies links and persists,
// and maps the outcome back to the returned error.
func (b *Builder) conclude(log *slog.Logger, report *Report, st *buildState, cacheBefore cache.Stats, prepErr, schedErr error, persist bool) (*Report, error) {
	var fatal, cancelErr error
	for _, e := range []error{prepErr, schedErr} {
		if e == nil {
			continue
		}
		if Classify(e) == KindCanceled {
			if cancelErr == nil {
				cancelErr = e
			}
			continue
		}
		if fatal == nil {
			fatal = e
		}
	}

	if st != nil {
		st.pool.Close()
		rendered, written, unchanged, drafts, stages := st.stats.snapshot()
		report.Rendered, report.Written, report.Unchanged, report.SkippedDrafts = rendered, written, unchanged, drafts
		for stage, d := range stages {
			report.StageDurationsMS[stage] = float64(d.Microseconds()) / 1000.0
		}
		if st.g != nil {
			report.GraphNodes = st.g.Len()
			for _, info := range st.g.Failed() {
				root := info.Name
				if rinfo, ok := st.g.Node(info.FailedBy); ok {
					root = rinfo.Name
				}
				report.Failures = append(report.Failures, NodeFailure{
					Node:      info.Name,
					Kind:      info.Kind.String(),
					ErrorKind: Classify(info.Err),
					Error:     errString(info.Err),
					Root:      root,
				})
			}
			report.Failed = len(report.Failures)
		}
	}
	if fatal != nil && !failureListed(report.Failures, fatal) {
		report.Failures = append(report.Failures, fatalFailure(fatal))
		report.Failed = len(report.Failures)
	}

	after := b.cache.Stats()
	report.CacheHits = after.Hits - cacheBefore.Hits
	report.CacheMisses = after.Misses - cacheBefore.Misses
	report.CacheStoreHits = after.StoreHits - cacheBefore.StoreHits

	if persist && b.cfg.VerifyLinks && fatal == nil && cancelErr == nil && report.SkipReason == "" {
		res, err := linkcheck.Verify(b.cfg.OutputDir(), b.cfg.NormalizedBaseURL())
		if err != nil {
			report.Warnings = append(report.Warnings, "link check: "+err.Error())
		} else {
			log.Info("links verified", logfields.Count(res.Checked), slog.Int("issues", len(res.Issues)))
			for _, issue := range res.Issues {
				report.Warnings = append(report.Warnings, issue.String())
			}
		}
	}

	report.deriveOutcome(cancelErr != nil)
	report.finish()
	b.metrics.ObserveBuildDuration(report.Duration())
	b.metrics.IncBuildOutcome(string(report.Outcome))

	if persist {
		if err := report.Persist(b.cfg.OutputDir()); err != nil {
			log.Warn("report not persisted", logfields.Error(err))
		}
	}

	log.Info("build finished",
		logfields.Outcome(string(report.Outcome)),
		slog.Int("rendered", report.Rendered),
		slog.Int("written", report.Written),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", report.Failed),
		logfields.DurationMS(float64(report.Duration().Microseconds())/1000.0),
	)

	switch {
	case fatal != nil:
		return report, fatal
	case cancelErr != nil:
		return report, cancelErr
	case report.Outcome == OutcomeFailed:
		return report, fmt.Errorf("build failed: %d of %d nodes", report.Failed, report.GraphNodes)
	default:
		return report, nil
	}
}

// failureListed reports whether the fatal error's node already has a
// row, so a fail-fast abort is not reported twice.
func failureListed(failures []NodeFailure, fatal error) bool {
	var be *Error
	if !errors.As(fatal, &be) || be.Node == "" {
		return false
	}
	for _, f := range failures {
		if f.Node == be.Node {
			return true
		}
	}
	return false
}

// fatalFailure turns a build-aborting error into a report row so the
// persisted report names the cause even when no node failed.
func fatalFailure(fatal error) NodeFailure {
	node := "build"
	var be *Error
	if errors.As(fatal, &be) && be.Node != "" {
		node = be.Node
	}
	return NodeFailure{
		Node:      node,
		Kind:      "build",
		ErrorKind: Classify(fatal),
		Error:     fatal.Error(),
		Root:      node,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// walkSkips lists top-level directories the walker must not descend
// into: VCS bookkeeping plus the output tree when it lives directly
// under the site root.
func walkSkips(cfg *config.Config) []string {
	skips := []string{".git"}
	rel, err := filepath.Rel(cfg.SiteDir, cfg.OutputDir())
	if err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator) {
		skips = append(skips, rel)
	}
	return skips
}
