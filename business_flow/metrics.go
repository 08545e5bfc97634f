package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Price resolutions partitioned by winning source
	priceResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_resolutions_total",
			Help: "Total price resolutions by winning source",
		},
		[]string{"source"},
	)

	// Cache outcome of price list lookups
	priceListCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_price_list_cache_total",
			Help: "Price list cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// Milestone transitions partitioned by target status and result
	milestoneTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_milestone_transitions_total",
			Help: "Milestone status transitions by target status and result",
		},
		[]string{"to", "result"},
	)

	// Disputes opened and resolved, by outcome for resolutions
	disputeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_dispute_events_total",
			Help: "Dispute lifecycle events by type",
		},
		[]string{"event"},
	)
)
