package planner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryPlans counts executed finds by access strategy.
	QueryPlans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okdb_query_plans_total",
			Help: "Total number of executed find requests by strategy",
		},
		[]string{"strategy"},
	)
	// QueryDuration is the latency of find requests.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "okdb_query_duration_seconds",
			Help:    "Find request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
	// UpdatesTotal counts update requests by outcome.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okdb_updates_total",
			Help: "Total number of update requests",
		},
		[]string{"status"},
	)
)
