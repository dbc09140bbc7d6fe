// Package metrics holds the Prometheus collectors shared by homepanel components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheLookups counts read-through cache lookups by key and result (hit, miss, error).
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "cache_lookups_total",
			Help:      "Read-through cache lookups.",
		},
		[]string{"key", "result"},
	)
	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "homepanel",
			Name:      "probe_duration_seconds",
			Help:      "Time spent in probe calls.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"key"},
	)
	CommandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "commands_total",
			Help:      "Commands handled by the dispatcher.",
		},
		[]string{"command", "outcome"},
	)
	UnauthorizedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "unauthorized_events_total",
			Help:      "Inbound events dropped by the access guard.",
		},
	)
	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "actions_total",
			Help:      "Privileged actions executed.",
		},
		[]string{"kind", "status"},
	)
	Alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "alerts_total",
			Help:      "Push alerts by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(CommandsHandled)
	prometheus.MustRegister(UnauthorizedEvents)
	prometheus.MustRegister(Actions)
	prometheus.MustRegister(Alerts)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
