// README: Prometheus collectors for HTTP traffic and dispatch outcomes.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yatri_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yatri_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yatri_ride_transitions_total",
			Help: "Ride state transitions by target state",
		},
		[]string{"status"},
	)

	NoDriversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yatri_no_drivers_total",
			Help: "Ride requests that found no eligible driver",
		},
	)

	RoutingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yatri_routing_failures_total",
			Help: "Routing provider errors and timeouts",
		},
	)

	PrebookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yatri_prebooking_transitions_total",
			Help: "Prebooking state transitions by target state",
		},
		[]string{"status"},
	)

	PriceVotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yatri_price_votes_total",
			Help: "Driver price votes by direction",
		},
		[]string{"direction"},
	)

	QueuePublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yatri_queue_messages_published_total",
			Help: "Messages published to ward queues",
		},
		[]string{"status"},
	)
)

// RecordHTTP records one finished request.
func RecordHTTP(method, path string, statusCode int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func RecordVote(direction int) {
	label := "up"
	if direction < 0 {
		label = "down"
	}
	PriceVotes.WithLabelValues(label).Inc()
}

func RecordPublish(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	QueuePublished.WithLabelValues(status).Inc()
}
