package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event bus metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspilot_events_published_total",
			Help: "Total number of events published by type",
		},
		[]string{"type"},
	)

	HandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspilot_event_handler_failures_total",
			Help: "Total number of event handler failures by event type",
		},
		[]string{"type"},
	)

	// Detector metrics
	IncidentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspilot_incidents_created_total",
			Help: "Total number of incidents emitted by detector rule",
		},
		[]string{"rule"},
	)

	SuppressedByCooldown = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspilot_incidents_suppressed_cooldown_total",
			Help: "Breaches suppressed because the rule was still cooling down",
		},
		[]string{"rule"},
	)

	SuppressedByRateLimit = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspilot_incidents_suppressed_ratelimit_total",
			Help: "Breaches suppressed by the global incident rate limit",
		},
		[]string{"rule"},
	)

	// Correlation metrics
	ActiveGroups = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "opspilot_correlation_groups_active",
			Help: "Number of active correlation groups",
		},
	)

	StormsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opspilot_correlation_storms_total",
			Help: "Total number of incident storms detected",
		},
	)

	IncidentsGrouped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opspilot_correlation_incidents_grouped_total",
			Help: "Total number of incidents joined to an existing group",
		},
	)

	// Approval metrics
	ApprovalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspilot_approval_decisions_total",
			Help: "Total approval gate decisions by outcome",
		},
		[]string{"outcome"},
	)

	// Audit metrics
	AuditWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opspilot_audit_writes_total",
			Help: "Total number of audit entries written",
		},
	)

	// Kernel metrics
	ModuleStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opspilot_module_state",
			Help: "Module lifecycle state (1 for the current state)",
		},
		[]string{"module", "state"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspilot_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opspilot_api_rate_limited_total",
			Help: "Total number of API requests rejected by the rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(HandlerFailures)
	prometheus.MustRegister(IncidentsCreated)
	prometheus.MustRegister(SuppressedByCooldown)
	prometheus.MustRegister(SuppressedByRateLimit)
	prometheus.MustRegister(ActiveGroups)
	prometheus.MustRegister(StormsEmitted)
	prometheus.MustRegister(IncidentsGrouped)
	prometheus.MustRegister(ApprovalDecisions)
	prometheus.MustRegister(AuditWrites)
	prometheus.MustRegister(ModuleStates)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(RateLimited)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
