package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lifestory"

var (
	once sync.Once

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_uploads_total",
			Help:      "Timeline upload attempts by item type and result.",
		},
		[]string{"type", "result"},
	)

	retriesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_retries_scheduled_total",
			Help:      "Failed uploads queued for a backoff retry.",
		},
	)

	terminalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_terminal_failures_total",
			Help:      "Items that ended in error without further automatic retries.",
		},
		[]string{"type"},
	)

	itemsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timeline_items",
			Help:      "Items currently held by the timeline store, by status.",
		},
		[]string{"status"},
	)

	retryQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timeline_retry_queue_size",
			Help:      "Entries waiting in the retry queue.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mock_api_http_requests_total",
			Help:      "Mock upload API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(uploads, retriesScheduled, terminalFailures, itemsByStatus, retryQueueSize, httpRequests)
	})
}

// ObserveUpload counts one upload attempt; result is "success" or "failure".
func ObserveUpload(itemType, result string) {
	uploads.WithLabelValues(itemType, result).Inc()
}

func IncRetryScheduled() {
	retriesScheduled.Inc()
}

func IncTerminalFailure(itemType string) {
	terminalFailures.WithLabelValues(itemType).Inc()
}

// SetTimelineStats publishes per-status item counts and the retry queue size.
func SetTimelineStats(byStatus map[string]int, queueSize int) {
	for status, count := range byStatus {
		itemsByStatus.WithLabelValues(status).Set(float64(count))
	}
	retryQueueSize.Set(float64(queueSize))
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
