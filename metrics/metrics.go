// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signspeak"

var (
	// Captures counts capture attempts by outcome
	// (ok, rejected, device_unavailable, classification_failed, discarded).
	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "captures_total",
		Help:      "Capture attempts by outcome.",
	}, []string{"outcome"})

	ClassifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "classify_duration_seconds",
		Help:      "Latency of classifier calls.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// Utterances counts speech requests by kind (auto, manual, test,
	// preempted).
	Utterances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "utterances_total",
		Help:      "Speech requests issued.",
	}, []string{"kind"})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persist_failures_total",
		Help:      "History writes that failed or were dropped.",
	})

	HistorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_local_entries",
		Help:      "Entries in the local session history.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
