package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "frames_captured_total",
		Help:      "Total number of frames acquired from the camera",
	})

	CaptureErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "capture_errors_total",
		Help:      "Camera reads that failed and were skipped",
	})

	DispatchSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "dispatch_skipped_total",
		Help:      "Frames not dispatched because a recognition task was in flight",
	})

	RecognitionInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "recognition_in_flight",
		Help:      "Recognition tasks currently running (0 or 1)",
	})

	SpoofRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "spoof_rejected_total",
		Help:      "Frames rejected by the liveness gate",
	})

	MatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "match_results_total",
		Help:      "Matcher outcomes",
	}, []string{"outcome"})

	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "ledger_commits_total",
		Help:      "Ledger commit attempts by kind and result",
	}, []string{"kind", "result"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "inference_duration_seconds",
		Help:      "Duration of recognition stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	SubscriberDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "subscriber_dropped_total",
		Help:      "Events dropped because a subscriber queue was full",
	}, []string{"subscriber"})

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "notification_failures_total",
		Help:      "Subscriber deliveries that returned an error",
	}, []string{"subscriber"})

	NetworkOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "network_online",
		Help:      "1 once the startup reachability check has succeeded",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
