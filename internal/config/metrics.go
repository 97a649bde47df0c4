package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "voice_config_reload_total",
	Help: "Voice config reloads by outcome",
}, []string{"outcome"})
