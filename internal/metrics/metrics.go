package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the service's Prometheus collectors behind its own
// prometheus.Registry so /metrics exposes exactly what the service
// registers.
type Registry struct {
	reg *prometheus.Registry

	EventsAppended    prometheus.Counter
	EventsRejected    *prometheus.CounterVec // label: reason (invalid_calendar, invalid_quantity, malformed)
	QueriesServed     prometheus.Counter
	AggregatesServed  prometheus.Counter
	UnresolvableZones prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	appended := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_events_appended_total",
		Help: "Sale events accepted into the store.",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_events_rejected_total",
		Help: "Sale events rejected at ingestion, by reason.",
	}, []string{"reason"})
	queries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_event_queries_total",
		Help: "Event range queries served.",
	})
	aggregates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_event_aggregates_total",
		Help: "Event aggregation queries served.",
	})
	unresolvable := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_unresolvable_zones_total",
		Help: "Events excluded from instant-ordered results due to unresolvable timezones.",
	})

	r.MustRegister(appended, rejected, queries, aggregates, unresolvable)
	return &Registry{
		reg:               r,
		EventsAppended:    appended,
		EventsRejected:    rejected,
		QueriesServed:     queries,
		AggregatesServed:  aggregates,
		UnresolvableZones: unresolvable,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
