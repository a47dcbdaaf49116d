// Package metrics declares the Prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_llm_requests_total",
		Help: "Total LLM generation requests",
	}, []string{"backend", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptforge_llm_request_duration_seconds",
		Help:    "LLM generation latency",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"backend"})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_llm_cache_lookups_total",
		Help: "Response cache lookups by result",
	}, []string{"result"})

	RetrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_retrievals_total",
		Help: "Example retrievals by outcome",
	}, []string{"outcome"})

	EmbeddingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptforge_query_embedding_duration_seconds",
		Help:    "Query embedding latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_pipeline_runs_total",
		Help: "Completed pipeline runs by strategy",
	}, []string{"strategy"})

	DegradationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptforge_stage_degradations_total",
		Help: "Pipeline stages that fell back to their default output",
	}, []string{"stage"})
)
