package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StoreRequestUnits accumulates the store-reported cost of repository operations.
	StoreRequestUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "blog", Subsystem: "store", Name: "request_units_total", Help: "Request units consumed by repository operations."},
		[]string{"operation"},
	)
	StoreQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "blog", Subsystem: "store", Name: "queries_total", Help: "Number of completed repository operations."},
		[]string{"operation"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "blog", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "blog", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

// ObserveStoreCost records one completed operation and its cost.
func ObserveStoreCost(operation string, units float64) {
	StoreQueries.WithLabelValues(operation).Inc()
	StoreRequestUnits.WithLabelValues(operation).Add(units)
}

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(StoreRequestUnits, StoreQueries, RateLimitAllowed, RateLimitRejected)
}
