package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics shared by both engines, labeled by backend name.
var (
	ConnectionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "badgestore",
		Subsystem: "backend",
		Name:      "connection_attempts_total",
		Help:      "Number of attempts to establish a database connection.",
	}, []string{"backend"})

	ConnectionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "badgestore",
		Subsystem: "backend",
		Name:      "connection_failures_total",
		Help:      "Number of failed attempts to establish a database connection.",
	}, []string{"backend"})

	HealthProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "badgestore",
		Subsystem: "backend",
		Name:      "health_probe_duration_seconds",
		Help:      "Latency of backend health probes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})
)
