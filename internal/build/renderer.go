package build

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tern/internal/cache"
	"tern/internal/graph"
	"tern/internal/markdown"
	"tern/internal/metrics"
	"tern/internal/site"
	"tern/internal/source"
	"tern/internal/styles"
	"tern/internal/templates"
)

// workerState holds the lazily built per-worker template renderer.
// Script-backed template funcs dispatch into the worker's own Lua
// engine, which must never be shared across goroutines.
type workerState struct {
	once sync.Once
	r    *templates.Renderer
	err  error
}

func (st *buildState) rendererFor(worker int) (*templates.Renderer, error) {
	ws := &st.workers[worker]
	ws.once.Do(func() {
		funcs := templates.Builtins()
		eng, err := st.pool.Engine(worker)
		if err != nil {
			ws.err = err
			return
		}
		for name, fn := range eng.TemplateFuncs() {
			funcs[name] = fn
		}
		ws.r, ws.err = st.model.Engine.Renderer(funcs)
	})
	return ws.r, ws.err
}

// renderNode runs the stages of one claimed node. The returned error
// goes back to the coordinator, which records it on the graph.
func (st *buildState) renderNode(_ context.Context, worker int, id graph.NodeID) error {
	info, ok := st.g.Node(id)
	if !ok {
		return fatalError(KindInternal, fmt.Errorf("render of unknown node %d", id))
	}
	if p, ok := st.model.Page(id); ok {
		return st.renderPage(worker, info.Name, p)
	}
	switch info.Kind {
	case graph.KindStylesheet:
		return st.renderStylesheet(info.Name, id)
	case graph.KindAsset:
		return st.copyAsset(info.Name, id)
	default:
		// Templates, partials and data files carry no stages of their
		// own; reaching Done unblocks their dependents.
		return nil
	}
}

// renderPage runs the markdown and template stages for one page and
// writes its artifact. Datums render into the model only.
func (st *buildState) renderPage(worker int, name string, p *site.Page) error {
	cfg := st.b.cfg
	if p.Draft && !cfg.Drafts {
		st.stats.addSkippedDraft()
		return nil
	}

	var own *site.Rendered
	if !p.Structured {
		key := cache.Key{Stage: StageMarkdown, Input: source.Fingerprint(p.Body), Context: st.pipeFP}
		out, err := st.runStage(StageMarkdown, key, func() (cache.Output, error) {
			res, rerr := st.pipeline.Render(p.Body)
			if rerr != nil {
				return cache.Output{}, rerr
			}
			data, merr := json.Marshal(res)
			if merr != nil {
				return cache.Output{}, merr
			}
			return cache.Output{Data: data}, nil
		})
		if err != nil {
			return nodeError(name, StageMarkdown, err)
		}
		var res markdown.Result
		if err := json.Unmarshal(out.Data, &res); err != nil {
			return nodeError(name, StageMarkdown, err)
		}
		own = &site.Rendered{Content: res.HTML, Sections: res.Sections, TOC: res.TOC, Snippet: res.Snippet}
		st.model.SetRendered(p.Node, own)
	}

	var artifact []byte
	switch {
	case p.Template != "":
		tctx := st.model.TemplateContext(p, own)
		ctxFP, err := st.model.ContextFP(p.Template, tctx)
		if err != nil {
			return nodeError(name, StageTemplate, err)
		}
		key := cache.Key{Stage: StageTemplate, Input: p.SourceFP(), Context: ctxFP}
		out, err := st.runStage(StageTemplate, key, func() (cache.Output, error) {
			r, rerr := st.rendererFor(worker)
			if rerr != nil {
				return cache.Output{}, rerr
			}
			text, rerr := r.Render(p.Template, tctx)
			if rerr != nil {
				return cache.Output{}, rerr
			}
			return cache.Output{Data: []byte(text)}, nil
		})
		if err != nil {
			return nodeError(name, StageTemplate, err)
		}
		artifact = out.Data
		if p.Kind == site.PageDatum {
			// Datums expose their final content to dependents instead
			// of producing a file.
			final := &site.Rendered{Content: string(out.Data)}
			if own != nil {
				final.Sections, final.TOC, final.Snippet = own.Sections, own.TOC, own.Snippet
			}
			st.model.SetRendered(p.Node, final)
		}
	case p.Structured:
		if p.Entry != nil {
			artifact = p.Entry.Data
		} else {
			artifact = p.Body
		}
	case own != nil:
		artifact = []byte(own.Content)
	}
	st.stats.addRendered()

	if p.Kind == site.PageDatum || p.Permapath == "" {
		return nil
	}
	wrote, err := st.writer.Write(p.Permapath, artifact)
	if err != nil {
		return &Error{Kind: KindIO, Node: name, Err: err}
	}
	st.recordArtifact(wrote)
	return nil
}

func (st *buildState) renderStylesheet(name string, id graph.NodeID) error {
	sh, ok := st.sheets[id]
	if !ok {
		return fatalError(KindInternal, fmt.Errorf("stylesheet node %s has no model entry", name))
	}
	src, _ := st.model.StyleSource(sh.Name)
	key := cache.Key{Stage: StageStyles, Input: sh.Entry.Fingerprint, Context: st.styleContextFP(sh.Name, src)}
	out, err := st.runStage(StageStyles, key, func() (cache.Output, error) {
		return outputOf(st.compiler.Compile(sh.Name, src))
	})
	if err != nil {
		return nodeError(name, StageStyles, err)
	}
	st.stats.addRendered()
	wrote, err := st.writer.Write(sh.Dest, out.Data)
	if err != nil {
		return &Error{Kind: KindIO, Node: name, Err: err}
	}
	st.recordArtifact(wrote)
	return nil
}

// styleContextFP folds the transitive import closure into the cache
// context, so editing an imported sheet invalidates every root that
// pulls it in.
func (st *buildState) styleContextFP(name string, src []byte) uint64 {
	fps := []uint64{boolFP(st.b.cfg.Styles.Minify)}
	for _, imp := range styles.Closure(name, src, st.model.StyleSource) {
		fps = append(fps, source.FingerprintString(imp))
		if data, ok := st.model.StyleSource(imp); ok {
			fps = append(fps, source.Fingerprint(data))
		}
	}
	return source.Combine(fps...)
}

func (st *buildState) copyAsset(name string, id graph.NodeID) error {
	a, ok := st.assets[id]
	if !ok {
		return fatalError(KindInternal, fmt.Errorf("asset node %s has no model entry", name))
	}
	wrote, err := st.writer.Write(a.Dest, a.Entry.Data)
	if err != nil {
		return &Error{Kind: KindIO, Node: name, Err: err}
	}
	st.recordArtifact(wrote)
	return nil
}

// highlightFunc adapts the highlighter into the markdown pipeline with
// per-snippet caching. Identical fenced blocks across pages pay for one
// render.
func (st *buildState) highlightFunc() markdown.HighlightFunc {
	hc := st.b.cfg.Highlight
	if !hc.Enabled || st.b.highlighter == nil {
		return nil
	}
	optFP := source.Combine(source.FingerprintString(hc.Style), boolFP(hc.LineNumbers))
	return func(code, lang string) (string, error) {
		key := cache.Key{
			Stage:   StageHighlight,
			Input:   source.FingerprintString(code),
			Context: source.Combine(optFP, source.FingerprintString(lang)),
		}
		out, err := st.runStage(StageHighlight, key, func() (cache.Output, error) {
			res, herr := st.b.highlighter.Render(code, lang)
			if herr != nil {
				return cache.Output{}, herr
			}
			return cache.Output{Data: []byte(res.HTML)}, nil
		})
		if err != nil {
			return "", err
		}
		return string(out.Data), nil
	}
}

func (st *buildState) recordArtifact(wrote bool) {
	st.stats.addArtifact(wrote)
	if wrote {
		st.b.metrics.IncArtifact(metrics.ArtifactWritten)
	} else {
		st.b.metrics.IncArtifact(metrics.ArtifactUnchanged)
	}
}

func outputOf(data []byte, err error) (cache.Output, error) {
	if err != nil {
		return cache.Output{}, err
	}
	return cache.Output{Data: data}, nil
}

func boolFP(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
