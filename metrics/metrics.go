// Package metrics exposes Prometheus collectors for the diagnostic engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagent_turns_total",
			Help: "Total number of chat turns processed",
		},
		[]string{"status"}, // ok, rejected, error
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diagent_turn_duration_seconds",
			Help:    "End-to-end turn duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
		},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagent_llm_requests_total",
			Help: "Total number of LLM backend requests",
		},
		[]string{"backend", "provider", "status"},
	)

	LLMRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagent_llm_retries_total",
			Help: "Total number of retried LLM requests",
		},
		[]string{"backend"},
	)

	LLMFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diagent_llm_fallbacks_total",
			Help: "Total number of turns served by the fallback backend",
		},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagent_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"provider", "type"}, // type: input/output
	)

	// Tool metrics
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagent_tool_calls_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	// Guardrail and validation metrics
	GuardrailRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diagent_guardrail_rejections_total",
			Help: "Total number of inputs rejected by guardrails",
		},
	)

	ValidationIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagent_validation_issues_total",
			Help: "Total number of response validation findings",
		},
		[]string{"severity"}, // error, warning
	)
)
