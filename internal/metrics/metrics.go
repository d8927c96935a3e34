package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer, history, poller and API counters, partitioned by asset where it
// applies.

var (
	// Transfers
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monallopay",
		Subsystem: "transfer",
		Name:      "attempts_total",
		Help:      "Transfer attempts by asset and outcome kind",
	}, []string{"asset", "outcome"})

	TransferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monallopay",
		Subsystem: "transfer",
		Name:      "duration_seconds",
		Help:      "Time from dispatch to settled",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"asset"})

	RecordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monallopay",
		Subsystem: "transfer",
		Name:      "record_failures_total",
		Help:      "Successful transfers whose history write failed",
	}, []string{"asset"})

	ComingSoonNotices = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monallopay",
		Subsystem: "transfer",
		Name:      "coming_soon_total",
		Help:      "Transfers short-circuited for an unreleased asset",
	})

	// Pollers
	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monallopay",
		Subsystem: "poller",
		Name:      "errors_total",
		Help:      "Failed refreshes by poller and asset",
	}, []string{"poller", "asset"})

	PollLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monallopay",
		Subsystem: "poller",
		Name:      "refresh_duration_seconds",
		Help:      "Refresh round duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"poller"})

	// API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monallopay",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "monallopay",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// Events
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monallopay",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Transfer events handed to the emitter, by result",
	}, []string{"result"})
)
