package node

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters and gauges a Service publishes. Each
// instance gets its own prometheus.Registry rather than registering
// into prometheus.DefaultRegisterer, so running more than one Service
// in the same process (as the test suite does) never panics on a
// duplicate-registration collision.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsConnected prometheus.Gauge
	SessionsTotal     *prometheus.CounterVec
	AnnouncementsRecv *prometheus.CounterVec
	AnnouncementsSent prometheus.Counter
	AnnouncementsRelayed prometheus.Counter
	FetchesStarted    prometheus.Counter
	FetchesCompleted  *prometheus.CounterVec
	FetchesInFlight   prometheus.Gauge
	RoutingEntries    prometheus.Gauge
	RateLimited       prometheus.Counter

	DaemonRequestsTotal          *prometheus.CounterVec
	DaemonRequestDurationSeconds *prometheus.HistogramVec
}

// NewMetrics builds a Metrics bound to a fresh, private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshnode", Subsystem: "sessions", Name: "connected",
			Help: "Number of sessions currently in the connected state.",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "sessions", Name: "transitions_total",
			Help: "Session state transitions by resulting state.",
		}, []string{"state"}),
		AnnouncementsRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "gossip", Name: "announcements_received_total",
			Help: "Announcements received by variant and acceptance outcome.",
		}, []string{"variant", "accepted"}),
		AnnouncementsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "gossip", Name: "announcements_sent_total",
			Help: "Announcements this node originated and signed.",
		}),
		AnnouncementsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "gossip", Name: "announcements_relayed_total",
			Help: "Announcements relayed to other sessions.",
		}),
		FetchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "fetch", Name: "started_total",
			Help: "Fetches dispatched to the reactor.",
		}),
		FetchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "fetch", Name: "completed_total",
			Help: "Fetches completed by outcome.",
		}, []string{"outcome"}),
		FetchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshnode", Subsystem: "fetch", Name: "in_flight",
			Help: "Fetches currently in flight.",
		}),
		RoutingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshnode", Subsystem: "routing", Name: "entries",
			Help: "Rows currently held in the routing table.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "ratelimit", Name: "rejected_total",
			Help: "Events rejected by the per-host rate limiter.",
		}),
		DaemonRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode", Subsystem: "daemon", Name: "requests_total",
			Help: "Control-plane HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		DaemonRequestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meshnode", Subsystem: "daemon", Name: "request_duration_seconds",
			Help: "Control-plane HTTP request latency.",
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(
		m.SessionsConnected, m.SessionsTotal, m.AnnouncementsRecv, m.AnnouncementsSent,
		m.AnnouncementsRelayed, m.FetchesStarted, m.FetchesCompleted, m.FetchesInFlight,
		m.RoutingEntries, m.RateLimited, m.DaemonRequestsTotal, m.DaemonRequestDurationSeconds,
	)
	return m
}
