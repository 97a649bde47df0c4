package arbiter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_speak_requests_total",
		Help: "Speak requests by arbitration outcome",
	}, []string{"outcome"})

	replacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_speak_pending_replaced_total",
		Help: "Pending speak requests overwritten by a newer request",
	})

	pipelineTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_speak_pipeline_total",
		Help: "Speak pipeline runs by result",
	}, []string{"result"})

	pipelineDurationMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_speak_pipeline_duration_ms",
		Help:    "Speak pipeline wall time in milliseconds, including playback",
		Buckets: prometheus.ExponentialBuckets(50, 1.8, 12),
	})
)
