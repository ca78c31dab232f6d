package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the signature-event lifecycle subsystem
var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signature_transitions_total",
			Help: "Total number of signature request status transitions",
		},
		[]string{"to_status"},
	)

	TransitionsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signature_transitions_rejected_total",
			Help: "Total number of transition attempts rejected as invalid",
		},
	)

	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of audit events appended",
		},
		[]string{"event_type"},
	)

	ComplianceChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_checks_total",
			Help: "Total number of compliance verification runs",
		},
		[]string{"verdict"},
	)

	BroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_broadcasts_total",
			Help: "Total number of events broadcast to admin connections",
		},
	)

	BroadcastDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_broadcast_drops_total",
			Help: "Total number of per-connection sends skipped (slow or closed connection)",
		},
	)

	StaleConnectionsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_stale_connections_evicted_total",
			Help: "Total number of connections force-closed by the heartbeat sweep",
		},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_active_connections",
			Help: "Current number of live admin connections",
		},
	)

	BroadcastDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifier_broadcast_duration_seconds",
			Help:    "Duration of a full fan-out pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	SigningAuthorityDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signing_authority_request_duration_seconds",
			Help:    "Duration of calls to the external signing authority",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(TransitionsRejectedTotal)
	prometheus.MustRegister(AuditEventsTotal)
	prometheus.MustRegister(ComplianceChecksTotal)
	prometheus.MustRegister(BroadcastsTotal)
	prometheus.MustRegister(BroadcastDropsTotal)
	prometheus.MustRegister(StaleConnectionsEvictedTotal)
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(BroadcastDuration)
	prometheus.MustRegister(SigningAuthorityDuration)
}
