// Package metrics exposes Prometheus collectors for the sync service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal          *prometheus.CounterVec
	syncRecordsTotal       *prometheus.CounterVec
	syncDurationSeconds    prometheus.Histogram
	notificationsTotal     *prometheus.CounterVec
	rateLimitRejectedTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call this
// function multiple times.
func Init() {
	once.Do(func() {
		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formation_sync_runs_total",
				Help: "Total number of sync runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		syncRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formation_sync_records_total",
				Help: "Total number of course records processed, labeled by status.",
			},
			[]string{"status"},
		)

		syncDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "formation_sync_duration_seconds",
				Help:    "Histogram of sync run durations.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formation_notifications_total",
				Help: "Total number of digest emails, labeled by status.",
			},
			[]string{"status"},
		)

		rateLimitRejectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "formation_ratelimit_rejected_total",
				Help: "Total number of requests rejected by the rate limiter.",
			},
		)
	})
}

// ObserveSyncRun records the outcome and duration of one sync run.
func ObserveSyncRun(outcome string, succeeded, failed int, d time.Duration) {
	if syncRunsTotal == nil {
		return
	}
	syncRunsTotal.WithLabelValues(outcome).Inc()
	syncRecordsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	syncRecordsTotal.WithLabelValues("failed").Add(float64(failed))
	syncDurationSeconds.Observe(d.Seconds())
}

// ObserveNotification records one digest dispatch attempt.
func ObserveNotification(sent bool) {
	if notificationsTotal == nil {
		return
	}
	if sent {
		notificationsTotal.WithLabelValues("sent").Inc()
		return
	}
	notificationsTotal.WithLabelValues("failed").Inc()
}

// ObserveRateLimitRejection counts one 429 response.
func ObserveRateLimitRejection() {
	if rateLimitRejectedTotal == nil {
		return
	}
	rateLimitRejectedTotal.Inc()
}
