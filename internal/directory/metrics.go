package directory

import "github.com/prometheus/client_golang/prometheus"

var (
	resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosstalk",
		Subsystem: "directory",
		Name:      "resolutions_total",
		Help:      "Key resolutions by chain source.",
	}, []string{"source"})

	resolutionMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "crosstalk",
		Subsystem: "directory",
		Name:      "resolution_misses_total",
		Help:      "Resolutions that exhausted the whole fallback chain.",
	})

	remoteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "crosstalk",
		Subsystem: "directory",
		Name:      "remote_failures_total",
		Help:      "Remote directory calls that failed or timed out.",
	})
)

func init() {
	prometheus.MustRegister(resolutionsTotal, resolutionMissesTotal, remoteFailuresTotal)
}
