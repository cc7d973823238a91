package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderWrites counts successful order persistence operations by kind
// (put/status_update/delete).
var OrderWrites = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dutchbook_order_writes_total",
		Help: "Total number of successful order write operations",
	},
	[]string{"kind"},
)

// StatusTransitions counts lifecycle transitions by resulting status.
var StatusTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dutchbook_status_transitions_total",
		Help: "Total number of order status transitions persisted",
	},
	[]string{"status"},
)

// QueryRejections counts filter combinations rejected by the index router.
var QueryRejections = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dutchbook_query_rejections_total",
		Help: "Total number of queries rejected for unsupported filter sets",
	},
)

// GuardrailTrips counts unimind serving guardrail activations by reason tag.
var GuardrailTrips = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dutchbook_unimind_guardrail_trips_total",
		Help: "Total number of unimind guardrail activations",
	},
	[]string{"reason"},
)

// ControllerBatches counts unimind batch runs by outcome (updated/accumulated/seeded/failed).
var ControllerBatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dutchbook_unimind_pair_batches_total",
		Help: "Total number of per-pair unimind batch outcomes",
	},
	[]string{"outcome"},
)

// PublishFailures counts order event publish failures.
var PublishFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dutchbook_event_publish_failures_total",
		Help: "Total number of failed order event publishes",
	},
)

func init() {
	prometheus.MustRegister(OrderWrites, StatusTransitions, QueryRejections)
	prometheus.MustRegister(GuardrailTrips, ControllerBatches, PublishFailures)
}
