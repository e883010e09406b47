// Package metrics records driver activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/aretw0/finchat/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnknownTool labels calls to tools the model was not offered.
const UnknownTool = "unknown"

// Query outcomes.
const (
	OutcomeAnswered        = "answered"
	OutcomeForced          = "forced"
	OutcomeBudgetExhausted = "budget_exhausted"
	OutcomeUpstream        = "upstream_error"
	OutcomeError           = "error"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	queries      *prometheus.CounterVec
	hops         prometheus.Histogram
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	submissions  prometheus.Counter
}

// New registers the finchat collectors, plus the Go and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finchat_queries_total",
				Help: "Total number of answered queries by outcome",
			},
			[]string{"outcome"},
		),
		hops: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finchat_hops",
				Help:    "Hops spent per query",
				Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finchat_tool_calls_total",
				Help: "Total number of tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finchat_tool_duration_seconds",
				Help:    "Duration of tool executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		submissions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finchat_chat_submissions_total",
				Help: "Total number of chat-completion submissions",
			},
		),
	}
	m.registry.MustRegister(
		m.queries, m.hops, m.toolCalls, m.toolDuration, m.submissions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns driver hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSubmit: func(context.Context, *domain.SubmitEvent) {
			m.submissions.Inc()
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			outcome := "ok"
			if e.IsError {
				outcome = "error"
			}
			tool := ToolLabel(e)
			m.toolCalls.WithLabelValues(tool, outcome).Inc()
			m.toolDuration.WithLabelValues(tool).Observe(e.Duration.Seconds())
		},
		OnAnswer: func(_ context.Context, e *domain.AnswerEvent) {
			m.queries.WithLabelValues(Outcome(e)).Inc()
			m.hops.Observe(float64(e.Hops))
		},
	}
}

// Outcome classifies a finished query.
func Outcome(e *domain.AnswerEvent) string {
	switch {
	case e.Err == nil && e.Forced:
		return OutcomeForced
	case e.Err == nil:
		return OutcomeAnswered
	case errors.Is(e.Err, domain.ErrBudgetExhausted):
		return OutcomeBudgetExhausted
	case errors.Is(e.Err, domain.ErrUpstream):
		return OutcomeUpstream
	default:
		return OutcomeError
	}
}

// ToolLabel returns the tool label for e, collapsing names the model made up
// so they cannot grow the label set.
func ToolLabel(e *domain.ToolEvent) string {
	if !e.Advertised {
		return UnknownTool
	}
	return e.ToolName
}
