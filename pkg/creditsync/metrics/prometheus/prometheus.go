// Package prommetrics provides a Prometheus implementation of the
// creditsync.Metrics interface.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements creditsync.Metrics using Prometheus.
type Metrics struct {
	ledgerWritesTotal   *prometheus.CounterVec
	ledgerWriteDuration *prometheus.HistogramVec
	balanceObserved     prometheus.Histogram
}

// NewMetrics creates a new Prometheus metrics implementation for the ledger.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ledgerWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Total number of credit balance writes.",
		}, []string{"operation", "status"}),

		ledgerWriteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_duration_seconds",
			Help:      "Duration of credit balance writes in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		balanceObserved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "balance_after_write",
			Help:      "Credit balance observed after a successful write.",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		}),
	}
}

// RecordLedgerWrite implements creditsync.Metrics.
func (m *Metrics) RecordLedgerWrite(operation, status string) {
	m.ledgerWritesTotal.WithLabelValues(operation, status).Inc()
}

// RecordLedgerWriteDuration implements creditsync.Metrics.
func (m *Metrics) RecordLedgerWriteDuration(operation string, duration time.Duration) {
	m.ledgerWriteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBalance implements creditsync.Metrics.
func (m *Metrics) RecordBalance(balance int64) {
	m.balanceObserved.Observe(float64(balance))
}
