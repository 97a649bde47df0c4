package eventws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventws_connected",
		Help: "Connected host event streams",
	})

	invalidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventws_invalid_frames_total",
		Help: "Event frames that could not be decoded",
	})
)
