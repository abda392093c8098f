package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// CacheEventLabel enumerates stage cache lookup outcomes.
type CacheEventLabel string

const (
	CacheHit      CacheEventLabel = "hit"
	CacheMiss     CacheEventLabel = "miss"
	CacheStoreHit CacheEventLabel = "store_hit"
)

// ArtifactLabel enumerates output writer results.
type ArtifactLabel string

const (
	ArtifactWritten   ArtifactLabel = "written"
	ArtifactUnchanged ArtifactLabel = "unchanged"
)

// Recorder defines observability hooks for build and stage metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil receivers
// when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string) // outcome: success|warning|failed|canceled
	IncCacheEvent(stage string, event CacheEventLabel)
	IncArtifact(event ArtifactLabel)
	SetWorkers(n int)
	SetGraphNodes(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncCacheEvent(string, CacheEventLabel)      {}
func (NoopRecorder) IncArtifact(ArtifactLabel)                  {}
func (NoopRecorder) SetWorkers(int)                             {}
func (NoopRecorder) SetGraphNodes(int)                          {}
