package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kadirpekel/hfspace/pkg/config"
)

// Manager owns the tracing and metrics lifecycle of a process.
type Manager struct {
	config  config.ObservabilityConfig
	opts    []TracingOption
	metrics Metrics

	shutdownTracing ShutdownFunc
	metricsServer   *http.Server
	metricsAddr     string
	mu              sync.RWMutex
}

func NewManager(cfg config.ObservabilityConfig, opts ...TracingOption) *Manager {
	return &Manager{
		config:  cfg,
		opts:    opts,
		metrics: NoopMetrics{},
	}
}

// NoopManager returns a Manager with everything disabled.
func NoopManager() *Manager {
	return NewManager(config.ObservabilityConfig{Tracing: config.TracingConfig{Exporter: "none"}})
}

// Initialize installs the tracer provider and, when metrics are enabled,
// registers the agent collectors and starts the /metrics listener.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	shutdown, err := InitTracing(ctx, m.config.Tracing, m.opts...)
	if err != nil {
		return err
	}
	m.shutdownTracing = shutdown

	if !m.config.Metrics.Enabled {
		return nil
	}

	metrics, err := NewPrometheusMetrics(Registry())
	if err != nil {
		return err
	}
	m.metrics = metrics
	SetGlobalMetrics(metrics)
	if err := EnableOTelMetrics(); err != nil {
		return err
	}

	if m.config.Metrics.Addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", m.config.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", m.config.Metrics.Addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	m.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	m.metricsAddr = ln.Addr().String()

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server stopped", "error", err)
		}
	}(m.metricsServer)
	slog.Info("Serving metrics", "addr", m.metricsAddr)

	return nil
}

func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (m *Manager) MetricsAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsAddr
}

// Shutdown flushes spans and stops the metrics listener.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.metricsServer != nil {
		errs = append(errs, m.metricsServer.Shutdown(ctx))
		m.metricsServer = nil
		m.metricsAddr = ""
	}
	if m.shutdownTracing != nil {
		errs = append(errs, m.shutdownTracing(ctx))
		m.shutdownTracing = nil
	}
	return errors.Join(errs...)
}
