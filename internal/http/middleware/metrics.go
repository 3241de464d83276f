package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"endpoint"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"endpoint"},
	)
	RaidsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raids_resolved_total",
			Help: "Total raids resolved, labeled by outcome",
		},
		[]string{"outcome"},
	)
	ClaimsSigned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claims_signed_total",
			Help: "Total claims signed",
		},
	)
)

func init() {
	prometheus.MustRegister(RLRequests)
	prometheus.MustRegister(RLBlocked)
	prometheus.MustRegister(RaidsResolved)
	prometheus.MustRegister(ClaimsSigned)
}
