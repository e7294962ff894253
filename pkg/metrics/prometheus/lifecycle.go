// Package prometheus implements the component metrics interfaces against
// the shared Prometheus registry. Every constructor returns nil when
// metrics are disabled, which component code treats as a no-op collector.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkarlsen/tenantd/pkg/metrics"
	"github.com/mkarlsen/tenantd/pkg/orchestrator"
)

type lifecycleMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeTenants     prometheus.Gauge
}

// NewLifecycleMetrics creates Prometheus-backed orchestrator metrics.
// Returns nil when metrics are disabled.
func NewLifecycleMetrics() orchestrator.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &lifecycleMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_lifecycle_operations_total",
				Help: "Total lifecycle operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tenantd_lifecycle_operation_duration_milliseconds",
				Help: "Duration of lifecycle operations in milliseconds",
				Buckets: []float64{
					10,    // 10ms - pure registry transitions
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - container operations
					5000,  // 5s
					15000, // 15s - flush waits
					60000, // 60s - restore with checkpoint replay
				},
			},
			[]string{"operation"},
		),
		activeTenants: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantd_active_tenants",
				Help: "Current number of active tenants",
			},
		),
	}
}

func (m *lifecycleMetrics) ObserveOperation(op string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds() * 1000)
}

func (m *lifecycleMetrics) SetActiveTenants(n int) {
	m.activeTenants.Set(float64(n))
}
