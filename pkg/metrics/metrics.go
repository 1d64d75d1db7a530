package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Release metrics
	ReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_releases_total",
			Help: "Total number of orchestration runs by outcome",
		},
		[]string{"outcome"},
	)

	ReleasesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_releases_rejected_total",
			Help: "Total number of rejected release requests by reason",
		},
		[]string{"reason"},
	)

	ReleaseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greenlight_release_duration_seconds",
			Help:    "End-to-end orchestration run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Health gate metrics
	GateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenlight_gate_duration_seconds",
			Help:    "Health gate run duration in seconds by verdict",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verdict"},
	)

	CheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_check_failures_total",
			Help: "Total number of failed health checks by check name and status",
		},
		[]string{"check", "status"},
	)

	// State metrics
	ActiveEnvironment = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "greenlight_active_environment",
			Help: "Which environment is active (1 = active, 0 = idle)",
		},
		[]string{"environment"},
	)

	FatalState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "greenlight_fatal_state",
			Help: "Whether the orchestrator is in the fatal state (1 = fatal)",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "greenlight_rollbacks_total",
			Help: "Total number of rollbacks performed",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenlight_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ReleasesTotal)
	prometheus.MustRegister(ReleasesRejected)
	prometheus.MustRegister(ReleaseDuration)
	prometheus.MustRegister(GateDuration)
	prometheus.MustRegister(CheckFailures)
	prometheus.MustRegister(ActiveEnvironment)
	prometheus.MustRegister(FatalState)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetActiveEnvironment updates the active-environment gauge pair
func SetActiveEnvironment(active string) {
	for _, env := range []string{"blue", "green"} {
		if env == active {
			ActiveEnvironment.WithLabelValues(env).Set(1)
		} else {
			ActiveEnvironment.WithLabelValues(env).Set(0)
		}
	}
}
