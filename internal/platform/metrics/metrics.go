// Package metrics exposes the promauto-registered counters/histograms for
// both services, grouped by concern the same way the rest of this
// pipeline's ambient stack groups package-level metric vars.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verification

	VerificationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_attempts_total",
			Help: "Total number of verify_user invocations",
		},
		[]string{"network", "outcome"},
	)

	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verification_duration_seconds",
			Help:    "Time taken to process a verification including the simulated delay",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"network"},
	)

	// Wallet generation

	WalletGenerationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_generation_total",
			Help: "Total number of create_wallet calls that missed cache and repository and attempted generation",
		},
		[]string{"network", "outcome"},
	)

	WalletGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_generation_duration_seconds",
			Help:    "Time taken to derive and persist a wallet address",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"network"},
	)

	// Cache

	CacheHitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hit_total",
			Help: "Cache lookups that found a live entry",
		},
		[]string{"cache"},
	)

	CacheMissTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_miss_total",
			Help: "Cache lookups that found no entry or an expired one",
		},
		[]string{"cache"},
	)

	// Event bus

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events successfully published",
		},
		[]string{"topic"},
	)

	EventsPublishFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_publish_failed_total",
			Help: "Total number of publish attempts that failed, counted per attempt",
		},
		[]string{"topic"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of consumer records dispatched to the handler",
		},
		[]string{"topic", "outcome"},
	)

	EventDedupHitTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_dedup_hit_total",
			Help: "Total number of user.verified records recognised as already-processed",
		},
	)

	DerivationIndexAllocatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivation_index_allocated_total",
			Help: "Total number of derivation indices handed out per network",
		},
		[]string{"network"},
	)
)
