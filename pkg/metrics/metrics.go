package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_requests_total",
			Help: "Total number of research requests",
		},
		[]string{"endpoint", "status"}, // status: ok, degraded, rejected, canceled
	)

	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_request_duration_seconds",
			Help:    "End-to-end research request latency in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"endpoint"},
	)

	LoopsCompleted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_loops_completed",
			Help:    "Reflection loops completed per research request",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
	)

	// External call metrics
	CallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_call_retries_total",
			Help: "Retries issued by the API call guard",
		},
		[]string{"call"},
	)

	CallExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_call_exhausted_total",
			Help: "External calls that failed after every attempt",
		},
		[]string{"call", "kind"}, // kind: quota, generic
	)

	// ParseFallbacks counts model outputs that did not decode and were replaced by a fallback value.
	ParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_parse_fallbacks_total",
			Help: "Structured model outputs replaced by their fallback value",
		},
		[]string{"step"},
	)
)
