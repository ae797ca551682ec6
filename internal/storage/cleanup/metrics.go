package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_storage_cleanup_runs_total",
		Help: "Orphan sweeps by disk and result",
	}, []string{"disk", "result"})

	deletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_storage_cleanup_deleted_total",
		Help: "Orphaned objects deleted by sweeps",
	}, []string{"disk"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_storage_cleanup_failures_total",
		Help: "Objects a sweep failed to check or delete",
	}, []string{"disk"})

	durationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_storage_cleanup_duration_seconds",
		Help:    "Duration of one disk sweep",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"disk"})
)

const (
	resultOK      = "ok"
	resultDryRun  = "dry_run"
	resultError   = "error"
	resultSkipped = "skipped"
)

func observe(report Report, result string) {
	disk := report.Disk.String()
	runsTotal.WithLabelValues(disk, result).Inc()
	if result == resultSkipped {
		return
	}
	deletedTotal.WithLabelValues(disk).Add(float64(report.Deleted))
	failuresTotal.WithLabelValues(disk).Add(float64(report.Failed))
	durationSeconds.WithLabelValues(disk).Observe(report.Duration.Seconds())
}
