package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	buildDuration prom.Histogram
	stageResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	cacheEvents   *prom.CounterVec
	artifacts     *prom.CounterVec
	workers       prom.Gauge
	graphNodes    prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tern",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual render stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "tern",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tern",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tern",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.cacheEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tern",
			Name:      "cache_events_total",
			Help:      "Stage cache lookups by stage and outcome",
		}, []string{"stage", "event"})
		pr.artifacts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tern",
			Name:      "artifacts_total",
			Help:      "Output writer results",
		}, []string{"event"})
		pr.workers = prom.NewGauge(prom.GaugeOpts{
			Namespace: "tern",
			Name:      "workers",
			Help:      "Worker count of the current build",
		})
		pr.graphNodes = prom.NewGauge(prom.GaugeOpts{
			Namespace: "tern",
			Name:      "graph_nodes",
			Help:      "Node count of the current site graph",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome, pr.cacheEvents, pr.artifacts, pr.workers, pr.graphNodes)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncCacheEvent(stage string, event CacheEventLabel) {
	if p == nil || p.cacheEvents == nil {
		return
	}
	p.cacheEvents.WithLabelValues(stage, string(event)).Inc()
}

func (p *PrometheusRecorder) IncArtifact(event ArtifactLabel) {
	if p == nil || p.artifacts == nil {
		return
	}
	p.artifacts.WithLabelValues(string(event)).Inc()
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil || p.workers == nil {
		return
	}
	p.workers.Set(float64(n))
}

func (p *PrometheusRecorder) SetGraphNodes(n int) {
	if p == nil || p.graphNodes == nil {
		return
	}
	p.graphNodes.Set(float64(n))
}
