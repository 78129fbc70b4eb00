package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClimateAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecovision_climate_api_calls_total",
			Help: "Total climate API calls",
		},
		[]string{"endpoint", "status"},
	)

	ClimateAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecovision_climate_api_latency_seconds",
			Help:    "Climate API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	AppliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecovision_applies_total",
			Help: "Total filter applies by analysis type and outcome",
		},
		[]string{"analysis_type", "outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecovision_active_sessions",
			Help: "Dashboard sessions currently held in memory",
		},
	)
)
