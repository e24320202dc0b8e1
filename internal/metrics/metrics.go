// Package metrics exposes Prometheus collectors for the fetch engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChaptersFetched counts chapter bodies fetched and persisted.
	ChaptersFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bindery_chapters_fetched_total",
		Help: "The total number of chapters fetched and persisted.",
	}, []string{"source"})

	// FetchRetries counts backoff retries of source operations.
	FetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bindery_fetch_retries_total",
		Help: "The total number of retried source fetches.",
	}, []string{"source"})

	// FetchFailures counts terminal fetch failures by failure kind.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bindery_fetch_failures_total",
		Help: "The total number of terminal fetch failures.",
	}, []string{"source", "kind"})

	// CatalogDrift counts catalog reconciliation warnings.
	CatalogDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bindery_catalog_drift_total",
		Help: "The total number of catalog drift warnings.",
	}, []string{"source"})

	// ChapterGaps counts chapters recorded as permanent gaps.
	ChapterGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bindery_chapter_gaps_total",
		Help: "The total number of chapters recorded as permanent gaps.",
	}, []string{"source"})
)
