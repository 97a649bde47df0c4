package player

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	playsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_runs_total",
		Help: "Player invocations by status",
	}, []string{"status"})

	playDurationMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "player_duration_ms",
		Help:    "Player process run time in milliseconds",
		Buckets: prometheus.ExponentialBuckets(100, 1.8, 12),
	})
)
