package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_created_total", Help: "Total rides created"})

	MatchesTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "matches_total", Help: "Total chair-ride assignments"})
	MatchPassSize   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_dispatch", Name: "match_pass_assignments", Help: "Assignments per dispatch pass", Buckets: prometheus.LinearBuckets(0, 2, 11)})
	MatchPassTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "match_passes_total", Help: "Total dispatch passes"})
	MatchLatency    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_dispatch", Name: "match_pass_duration_seconds", Help: "Dispatch pass duration"})
	MatchesLostRace = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "matches_lost_race_total", Help: "Assignments abandoned because another pass won the row"})

	NotificationsDrained = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "notifications_drained_total", Help: "Status events delivered to pollers"},
		[]string{"audience"},
	)

	PaymentAttempts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "payment_attempts_total", Help: "Payment gateway requests, including retries"})
	PaymentFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "payment_failures_total", Help: "Settlements that exhausted their retry budget"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
