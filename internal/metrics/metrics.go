package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hidro_sync_runs_total",
			Help: "Sync runs by outcome (success, failed, rejected)",
		},
		[]string{"outcome"},
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hidro_sync_run_duration_seconds",
			Help:    "Wall-clock duration of completed sync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	SyncRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hidro_sync_running",
			Help: "1 while a sync run is active",
		},
	)

	SyncWindows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hidro_sync_windows_total",
			Help: "Date windows processed by outcome (ok, empty, failed)",
		},
		[]string{"outcome"},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hidro_sync_records_total",
			Help: "Telemetry records by save outcome (created, updated, failed)",
		},
		[]string{"outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hidro_upstream_request_duration_seconds",
			Help:    "Duration of HidroWeb API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)

// ObserveUpstream records one upstream call; status 0 means a transport error.
func ObserveUpstream(operation string, status int, started time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestDuration.WithLabelValues(operation, label).Observe(time.Since(started).Seconds())
}
