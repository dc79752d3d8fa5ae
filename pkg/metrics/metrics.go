package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsProcessed counts membership transitions by attribution outcome.
	TransitionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refledger_transitions_total",
			Help: "Total number of membership transitions processed, by outcome",
		},
		[]string{"outcome"},
	)

	// CreditsCreated counts referral credits committed to the ledger.
	CreditsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refledger_credits_created_total",
			Help: "Total number of referral credits created",
		},
	)

	// TokenRequests records invitation token requests by result (existing|created|error).
	TokenRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refledger_token_requests_total",
			Help: "Total number of invitation token requests",
		},
		[]string{"result"},
	)

	// AuthorityFailures counts failed calls to the invitation authority by kind.
	AuthorityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refledger_authority_failures_total",
			Help: "Total number of invitation authority failures",
		},
		[]string{"kind"},
	)

	// StoredCredits reports the number of credits per community, refreshed periodically.
	StoredCredits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "refledger_stored_credits",
			Help: "Number of referral credits stored per community",
		},
		[]string{"community"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refledger_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
