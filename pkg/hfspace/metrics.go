package hfspace

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kadirpekel/hfspace/pkg/observability"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics counts tool calls served by the server.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the server collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	calls, err := observability.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hfspace",
		Name:      "tool_calls_total",
		Help:      "Tool calls served, by tool and status.",
	}, []string{"tool", "status"}))
	if err != nil {
		return nil, err
	}

	duration, err := observability.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hfspace",
		Name:      "tool_duration_seconds",
		Help:      "Tool call duration in seconds.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"tool"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{calls: calls, duration: duration}, nil
}

func (m *Metrics) observe(tool string, start time.Time, failed bool) {
	if m == nil {
		return
	}
	status := statusOK
	if failed {
		status = statusError
	}
	m.calls.WithLabelValues(tool, status).Inc()
	m.duration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}
