// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the transform and commit counters.
const (
	StatusOK      = "ok"
	StatusAbsent  = "absent"
	StatusFailed  = "failed"
	StatusPanic   = "panic"
	StatusSkipped = "skipped"
)

var (
	itemsDiscoveredTotal       *prometheus.CounterVec
	discoveryFailuresTotal     prometheus.Counter
	transformsTotal            *prometheus.CounterVec
	commitsTotal               *prometheus.CounterVec
	workerRestartsTotal        *prometheus.CounterVec
	recordsCollectedTotal      prometheus.Counter
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	promotionsTotal            *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		itemsDiscoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_items_discovered_total",
				Help: "Total number of work items discovered, labeled by category.",
			},
			[]string{"category"},
		)

		discoveryFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_discovery_failures_total",
				Help: "Total number of categories whose discovery failed.",
			},
		)

		transformsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_transforms_total",
				Help: "Total number of work items transformed, labeled by outcome.",
			},
			[]string{"status"},
		)

		commitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_commits_total",
				Help: "Total number of record commits, labeled by outcome.",
			},
			[]string{"status"},
		)

		workerRestartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_worker_restarts_total",
				Help: "Total number of supervised worker restarts, labeled by worker index.",
			},
			[]string{"index"},
		)

		recordsCollectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_collected_total",
				Help: "Total number of records appended to the shared collection.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Time requests waited for their host's rate limit.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		)

		promotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_headless_promotions_total",
				Help: "Static fetches retried in the headless browser, labeled by outcome.",
			},
			[]string{"status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveDiscovery records the outcome of one category discovery.
func ObserveDiscovery(category string, items int, err error) {
	Init()
	if err != nil {
		discoveryFailuresTotal.Inc()
		return
	}
	itemsDiscoveredTotal.WithLabelValues(category).Add(float64(items))
}

// ObserveTransform increments the transform counter for the given outcome.
func ObserveTransform(status string) {
	Init()
	transformsTotal.WithLabelValues(status).Inc()
}

// ObserveCommit increments the commit counter for the given outcome.
func ObserveCommit(status string) {
	Init()
	commitsTotal.WithLabelValues(status).Inc()
}

// ObserveRestart increments the restart counter of a supervised worker.
func ObserveRestart(index int) {
	Init()
	workerRestartsTotal.WithLabelValues(strconv.Itoa(index)).Inc()
}

// ObserveCollected increments the collected records counter.
func ObserveCollected() {
	Init()
	recordsCollectedTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a request waited for its host.
func ObserveRateLimitDelay(host string, waited time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(waited.Seconds())
}

// ObservePromotion increments the headless promotion counter.
func ObservePromotion(status string) {
	Init()
	promotionsTotal.WithLabelValues(status).Inc()
}
