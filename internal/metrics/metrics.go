package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlanAssemblyCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bundlectl_plan_assembly_count_total",
			Help: "Total number of build plan assemblies",
		},
	)

	PlanAssemblyFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundlectl_plan_assembly_failed_total",
			Help: "Number of failed build plan assemblies, by problem kind",
		},
		[]string{"error_type"},
	)

	BundleBuildCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bundlectl_bundle_build_count_total",
			Help: "Total number of bundler runs",
		},
	)

	BundleBuildFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bundlectl_bundle_build_failed_total",
			Help: "Number of bundler runs that reported errors",
		},
	)

	BundleBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bundlectl_bundle_build_duration_seconds",
			Help:    "Bundler run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
	)

	BudgetWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundlectl_budget_warnings_total",
			Help: "Number of artifacts over their size budget",
		},
		[]string{"asset", "kind"},
	)
)

// WriteToTextfile writes all registered metrics in the text exposition
// format, for collection by a node exporter.
func WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
