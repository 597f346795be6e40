package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_remote_requests_total",
			Help: "Total number of requests sent to the remote store",
		},
		[]string{"method", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_remote_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_remote_breaker_state",
			Help: "Current state of the remote store circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// observe учитывает запрос; status 0 означает транспортную ошибку.
func observe(method string, status int, start time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status/100) + "xx"
	}
	remoteRequestsTotal.WithLabelValues(method, label).Inc()
	remoteRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
