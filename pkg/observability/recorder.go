package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records agent activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordAgentCall(ctx context.Context, agent string, duration time.Duration, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
}

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// PrometheusMetrics implements Metrics with client_golang collectors.
// The zero value and a nil pointer are valid and record nothing.
type PrometheusMetrics struct {
	agentDuration *prometheus.HistogramVec
	agentCalls    *prometheus.CounterVec
	agentErrors   *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	toolCalls     *prometheus.CounterVec
	toolErrors    *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	llmErrors     *prometheus.CounterVec
}

// NewPrometheusMetrics registers the agent collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{}
	var err error

	histogram := func(name, help, label string) (*prometheus.HistogramVec, error) {
		return Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   prometheus.DefBuckets,
		}, []string{label}))
	}
	counter := func(name, help string, labels ...string) (*prometheus.CounterVec, error) {
		return Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels))
	}

	if m.agentDuration, err = histogram("agent_call_duration_seconds", "Agent call duration in seconds", "agent"); err != nil {
		return nil, fmt.Errorf("failed to create agent duration histogram: %w", err)
	}
	if m.agentCalls, err = counter("agent_calls_total", "Total agent calls", "agent"); err != nil {
		return nil, fmt.Errorf("failed to create agent calls counter: %w", err)
	}
	if m.agentErrors, err = counter("agent_errors_total", "Total agent errors", "agent"); err != nil {
		return nil, fmt.Errorf("failed to create agent errors counter: %w", err)
	}
	if m.toolDuration, err = histogram("agent_tool_duration_seconds", "Tool execution duration in seconds as seen by agents", "tool"); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}
	if m.toolCalls, err = counter("agent_tool_calls_total", "Total tool calls made by agents", "tool"); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}
	if m.toolErrors, err = counter("agent_tool_errors_total", "Total failed tool calls made by agents", "tool"); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}
	if m.llmDuration, err = histogram("llm_request_duration_seconds", "LLM request duration in seconds", "model"); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}
	if m.llmTokens, err = counter("llm_tokens_total", "Total LLM tokens", "model", "direction"); err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}
	if m.llmErrors, err = counter("llm_errors_total", "Total LLM errors", "model"); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordAgentCall(_ context.Context, agent string, duration time.Duration, err error) {
	if m == nil || m.agentDuration == nil || m.agentCalls == nil {
		return
	}

	m.agentDuration.WithLabelValues(agent).Observe(duration.Seconds())
	m.agentCalls.WithLabelValues(agent).Inc()

	if err != nil && m.agentErrors != nil {
		m.agentErrors.WithLabelValues(agent).Inc()
	}
}

func (m *PrometheusMetrics) RecordToolExecution(_ context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil || m.toolCalls == nil {
		return
	}

	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	m.toolCalls.WithLabelValues(tool).Inc()

	if err != nil && m.toolErrors != nil {
		m.toolErrors.WithLabelValues(tool).Inc()
	}
}

func (m *PrometheusMetrics) RecordLLMCall(_ context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmTokens == nil {
		return
	}

	m.llmDuration.WithLabelValues(model).Observe(duration.Seconds())
	m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))

	if err != nil && m.llmErrors != nil {
		m.llmErrors.WithLabelValues(model).Inc()
	}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordAgentCall(context.Context, string, time.Duration, error) {}

func (NoopMetrics) RecordToolExecution(context.Context, string, time.Duration, error) {}

func (NoopMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if m == nil {
		m = NoopMetrics{}
	}
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
