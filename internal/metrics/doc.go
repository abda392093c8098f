// Package metrics provides observability hooks for build and stage metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection needs no nil checks at call sites.
// NewPrometheusRecorder registers the real instruments on a private registry;
// HTTPHandler exposes that registry for scraping in watch mode.
package metrics
