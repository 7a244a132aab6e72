package threatlens

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatlens",
			Name:      "alerts_total",
			Help:      "Alerts persisted, partitioned by category and severity.",
		},
		[]string{"category", "severity"},
	)

	inspectionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "threatlens",
			Name:      "inspection_seconds",
			Help:      "Duration of one full request inspection (all passes).",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	broadcastSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "threatlens",
			Name:      "broadcast_sessions",
			Help:      "Connected dashboard WebSocket sessions.",
		},
	)

	broadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "threatlens",
			Name:      "broadcast_dropped_total",
			Help:      "Frames dropped because a session buffer was full.",
		},
	)

	storeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "threatlens",
			Name:      "store_failures_total",
			Help:      "Alert writes that failed and were swallowed.",
		},
	)
)

// RegisterMetrics attaches the package collectors to the supplied
// Prometheus registerer. Double registration is tolerated so tests can
// build multiple servers against the default registry.
func RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		alertsTotal,
		inspectionSeconds,
		broadcastSessions,
		broadcastDropped,
		storeFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func observeAlert(cat Category, sev Severity) {
	alertsTotal.WithLabelValues(string(cat), string(sev)).Inc()
}

func observeInspection(d time.Duration) {
	inspectionSeconds.Observe(d.Seconds())
}

func observeBroadcastDrop() {
	broadcastDropped.Inc()
}

func observeStoreFailure() {
	storeFailures.Inc()
}

func setBroadcastSessions(n int) {
	broadcastSessions.Set(float64(n))
}
