package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mkarlsen/tenantd/pkg/lock"
	"github.com/mkarlsen/tenantd/pkg/metrics"
)

type lockMetrics struct {
	acquiresTotal      *prometheus.CounterVec
	releasesTotal      *prometheus.CounterVec
	waitDuration       *prometheus.HistogramVec
	forceReleasedTotal prometheus.Counter
}

// NewLockMetrics creates Prometheus-backed lock metrics.
// Returns nil when metrics are disabled.
func NewLockMetrics() lock.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &lockMetrics{
		acquiresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_lock_acquires_total",
				Help: "Total lock acquire attempts by outcome",
			},
			[]string{"outcome"},
		),
		releasesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_lock_releases_total",
				Help: "Total lock release attempts by outcome",
			},
			[]string{"outcome"},
		),
		waitDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tenantd_lock_wait_duration_milliseconds",
				Help: "Time spent waiting in WaitAcquire in milliseconds",
				Buckets: []float64{
					10,    // 10ms - uncontended
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - a full default TTL
					15000, // 15s
					30000, // 30s - near the default wait bound
				},
			},
			[]string{"outcome"},
		),
		forceReleasedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tenantd_lock_force_released_total",
				Help: "Total locks cleared by administrative force release",
			},
		),
	}
}

func outcome(ok bool) string {
	if ok {
		return "acquired"
	}
	return "contended"
}

func (m *lockMetrics) RecordAcquire(acquired bool) {
	m.acquiresTotal.WithLabelValues(outcome(acquired)).Inc()
}

func (m *lockMetrics) RecordRelease(released bool) {
	label := "released"
	if !released {
		label = "not_held"
	}
	m.releasesTotal.WithLabelValues(label).Inc()
}

func (m *lockMetrics) RecordWait(d time.Duration, acquired bool) {
	label := outcome(acquired)
	if !acquired {
		label = "timeout"
	}
	m.waitDuration.WithLabelValues(label).Observe(d.Seconds() * 1000)
}

func (m *lockMetrics) RecordForceRelease(count int) {
	m.forceReleasedTotal.Add(float64(count))
}
