package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkarlsen/tenantd/pkg/metrics"
	"github.com/mkarlsen/tenantd/pkg/router"
)

type routerMetrics struct {
	dispatchesTotal *prometheus.CounterVec
}

// NewRouterMetrics creates Prometheus-backed event-router metrics.
// Returns nil when metrics are disabled.
func NewRouterMetrics() router.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &routerMetrics{
		dispatchesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_router_dispatches_total",
				Help: "Total subscriber dispatches by subscriber and status",
			},
			[]string{"subscriber", "status"},
		),
	}
}

func (m *routerMetrics) RecordDispatch(subscriber, _ string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dispatchesTotal.WithLabelValues(subscriber, status).Inc()
}
