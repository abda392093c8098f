package build

import (
	"time"

	"tern/internal/cache"
	"tern/internal/metrics"
)

// Stage names shared by cache keys, metrics labels and the report.
const (
	StageMarkdown  = "markdown"
	StageTemplate  = "template"
	StageStyles    = "styles"
	StageHighlight = "highlight"
)

// runStage executes one cached stage computation. Lookup outcome and
// duration feed the metrics recorder and the per-build counters.
// Joining another worker's in-flight computation emits no cache event.
func (st *buildState) runStage(stage string, key cache.Key, compute cache.ComputeFunc) (cache.Output, error) {
	start := time.Now()
	out, res, err := st.b.cache.GetOrCompute(key, compute)
	d := time.Since(start)
	st.b.metrics.ObserveStageDuration(stage, d)
	st.stats.addStage(stage, d)
	if err != nil {
		st.b.metrics.IncStageResult(stage, metrics.ResultFailed)
		return cache.Output{}, err
	}
	st.b.metrics.IncStageResult(stage, metrics.ResultSuccess)
	switch res {
	case cache.Hit:
		st.b.metrics.IncCacheEvent(stage, metrics.CacheHit)
	case cache.StoreHit:
		st.b.metrics.IncCacheEvent(stage, metrics.CacheStoreHit)
	case cache.Computed:
		st.b.metrics.IncCacheEvent(stage, metrics.CacheMiss)
	}
	return out, nil
}
