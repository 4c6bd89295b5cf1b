package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the moderation service
type Metrics struct {
	// Pipeline metrics
	JobsProcessed      *prometheus.CounterVec
	ClassifierDuration *prometheus.HistogramVec
	QueueDepth         *prometheus.GaugeVec

	// API surface metrics
	RateLimitRejections *prometheus.CounterVec
	ProgressConnections *prometheus.GaugeVec
}
