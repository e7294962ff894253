package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkarlsen/tenantd/pkg/checkpoint"
	"github.com/mkarlsen/tenantd/pkg/metrics"
)

type checkpointMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewCheckpointMetrics creates Prometheus-backed checkpoint metrics.
// Returns nil when metrics are disabled.
func NewCheckpointMetrics() checkpoint.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &checkpointMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_checkpoint_operations_total",
				Help: "Total checkpoint saves and restores by status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tenantd_checkpoint_operation_duration_milliseconds",
				Help: "Duration of checkpoint saves and restores in milliseconds",
				Buckets: []float64{
					50,    // 50ms - small tenants
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - large snapshots
					15000, // 15s
				},
			},
			[]string{"operation"},
		),
	}
}

func (m *checkpointMetrics) observe(op string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds() * 1000)
}

func (m *checkpointMetrics) ObserveSave(d time.Duration, err error) {
	m.observe("save", d, err)
}

func (m *checkpointMetrics) ObserveRestore(d time.Duration, err error) {
	m.observe("restore", d, err)
}
