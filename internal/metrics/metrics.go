package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_documents_processed_total",
		Help: "Documents run through the ingestion pipeline, by outcome (ready, failed, rejected).",
	}, []string{"outcome"})
	ChunksStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_chunks_stored_total",
		Help: "Chunks persisted with an embedding, by source (document, web).",
	}, []string{"source"})
	EmbeddingCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_embedding_calls_total",
		Help: "Calls to the embedding API by model and result.",
	}, []string{"model", "result"})
	ModelCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cadence_model_call_duration_seconds",
		Help:    "Generative model call latency by operation.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
	}, []string{"operation"})
	ScrapeJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_scrape_jobs_total",
		Help: "Scrape job submissions by outcome (created, reused, requeued, dispatch_failed).",
	}, []string{"outcome"})
	ScrapeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_scrape_runs_total",
		Help: "Scrape worker runs by terminal status.",
	}, []string{"status"})
	SchemaFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_schema_fallbacks_total",
		Help: "Conversation store operations served by a non-canonical strategy.",
	}, []string{"operation", "strategy"})
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)
