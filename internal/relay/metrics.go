package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	decrypted *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obscura",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Relay HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "obscura",
			Subsystem: "relay",
			Name:      "request_duration_seconds",
			Help:      "Relay HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		decrypted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obscura",
			Subsystem: "relay",
			Name:      "decrypted_handles_total",
			Help:      "Handles released by the relay, by path.",
		}, []string{"path"}),
	}
	reg.MustRegister(m.requests, m.duration, m.decrypted)
	return m
}
