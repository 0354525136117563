package clearing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearpay_clearing_reconnect_attempts_total",
		Help: "Reconnect attempts after an unexpected connection loss.",
	})
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearpay_clearing_requests_total",
		Help: "Outbound clearing requests by method and outcome.",
	}, []string{"method", "outcome"})
	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clearpay_clearing_request_seconds",
		Help:    "Latency of correlated clearing requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	malformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearpay_clearing_malformed_frames_total",
		Help: "Inbound frames dropped because they were not parseable.",
	})
	unmatchedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearpay_clearing_unmatched_frames_total",
		Help: "Inbound frames with no outstanding request to correlate to.",
	})
)

func observeRequest(method, outcome string, started time.Time) {
	requestsTotal.WithLabelValues(method, outcome).Inc()
	requestSeconds.WithLabelValues(method).Observe(time.Since(started).Seconds())
}
