// Package metrics owns every Prometheus collector the ingestion core
// exports, initialised once at startup and read by the /metrics endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// External-client metrics (§4.1), labelled by client name.
	clientRequestsTotal *prometheus.CounterVec
	clientDuration      *prometheus.HistogramVec
	clientErrorsTotal   *prometheus.CounterVec
	clientRateLimitWaitSeconds *prometheus.HistogramVec

	// Cache metrics (§4 storage adapters).
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	cacheErrorsTotal *prometheus.CounterVec

	// Scheduler + worker-pool metrics (§4.5), labelled by task kind/queue.
	schedulerTicksTotal          *prometheus.CounterVec
	taskExecutionsTotal          *prometheus.CounterVec
	taskDuration                 *prometheus.HistogramVec
	taskQuarantinedTotal         *prometheus.CounterVec
	taskDedupAbsorbedTotal       *prometheus.CounterVec
	queueDepth                   *prometheus.GaugeVec

	// Engine metrics (§4.2/§4.3).
	weatherIndexAnomaliesTotal prometheus.Counter
	biomassQualityAlertsTotal  prometheus.Counter

	// Evidence bundler metrics (§4.4).
	evidenceBundlesPublishedTotal prometheus.Counter
	evidenceConflictsTotal        prometheus.Counter
)

// Init initialises every collector. Safe to call more than once; the
// registration only happens on the first call.
func Init() {
	once.Do(func() {
		clientRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestcore_client_requests_total",
				Help: "Total external-client requests by client and outcome",
			},
			[]string{"client", "status"},
		)
		clientDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestcore_client_request_duration_seconds",
				Help:    "External-client request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"client"},
		)
		clientErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestcore_client_errors_total",
				Help: "External-client errors by client and taxonomy kind",
			},
			[]string{"client", "kind"},
		)
		clientRateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestcore_client_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the per-client token bucket",
				Buckets: []float64{0, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"client"},
		)

		cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestcore_cache_hits_total",
			Help: "Total cache hits",
		})
		cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestcore_cache_misses_total",
			Help: "Total cache misses",
		})
		cacheErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestcore_cache_errors_total",
				Help: "Total cache operation errors",
			},
			[]string{"operation"},
		)

		schedulerTicksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestcore_scheduler_ticks_total",
				Help: "Total cron ticks fired, by task kind",
			},
			[]string{"kind"},
		)
		taskExecutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestcore_task_executions_total",
				Help: "Total task executions by kind and outcome",
			},
			[]string{"kind", "queue", "status"},
		)
		taskDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestcore_task_duration_seconds",
				Help:    "Task execution duration",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind", "queue"},
		)
		taskQuarantinedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestcore_task_quarantined_total",
				Help: "Tasks quarantined after exhausting retries",
			},
			[]string{"kind"},
		)
		taskDedupAbsorbedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestcore_task_dedup_absorbed_total",
				Help: "Enqueues absorbed by the dedup gate",
			},
			[]string{"kind"},
		)
		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingestcore_queue_depth",
				Help: "Current in-flight task count per queue",
			},
			[]string{"queue"},
		)

		weatherIndexAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestcore_weather_index_anomalies_total",
			Help: "Weather indices flagged anomalous",
		})
		biomassQualityAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestcore_biomass_quality_alerts_total",
			Help: "Plots flagged by the biomass data-quality watch",
		})

		evidenceBundlesPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestcore_evidence_bundles_published_total",
			Help: "Evidence documents successfully published",
		})
		evidenceConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestcore_evidence_conflicts_total",
			Help: "Evidence bundle attempts that no-op'd on an existing assessment",
		})
	})
}

func init() { Init() }

// RecordClientRequest records one external-client call outcome and latency.
func RecordClientRequest(client, status string, duration time.Duration) {
	clientRequestsTotal.WithLabelValues(client, status).Inc()
	clientDuration.WithLabelValues(client).Observe(duration.Seconds())
}

// RecordClientError records an external-client failure tagged by taxonomy kind.
func RecordClientError(client, kind string) {
	clientErrorsTotal.WithLabelValues(client, kind).Inc()
}

// RecordRateLimitWait records how long a call blocked on the token bucket.
func RecordRateLimitWait(client string, wait time.Duration) {
	clientRateLimitWaitSeconds.WithLabelValues(client).Observe(wait.Seconds())
}

// RecordCacheHit records a cache hit.
func RecordCacheHit() { cacheHitsTotal.Inc() }

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() { cacheMissesTotal.Inc() }

// RecordCacheError records a cache operation error.
func RecordCacheError(operation string) { cacheErrorsTotal.WithLabelValues(operation).Inc() }

// RecordSchedulerTick records one cron fire for a task kind.
func RecordSchedulerTick(kind string) { schedulerTicksTotal.WithLabelValues(kind).Inc() }

// RecordTaskExecution records a task's terminal outcome and duration.
func RecordTaskExecution(kind, queue, status string, duration time.Duration) {
	taskExecutionsTotal.WithLabelValues(kind, queue, status).Inc()
	taskDuration.WithLabelValues(kind, queue).Observe(duration.Seconds())
}

// RecordTaskQuarantined records a task exhausting its retry budget.
func RecordTaskQuarantined(kind string) { taskQuarantinedTotal.WithLabelValues(kind).Inc() }

// RecordDedupAbsorbed records an enqueue absorbed by the dedup gate.
func RecordDedupAbsorbed(kind string) { taskDedupAbsorbedTotal.WithLabelValues(kind).Inc() }

// SetQueueDepth publishes the current in-flight count for a queue.
func SetQueueDepth(queue string, depth int) { queueDepth.WithLabelValues(queue).Set(float64(depth)) }

// RecordWeatherAnomaly records an anomalous WeatherIndex.
func RecordWeatherAnomaly() { weatherIndexAnomaliesTotal.Inc() }

// RecordBiomassQualityAlert records a data-quality-watch hit.
func RecordBiomassQualityAlert() { biomassQualityAlertsTotal.Inc() }

// RecordEvidencePublished records a successful evidence publish.
func RecordEvidencePublished() { evidenceBundlesPublishedTotal.Inc() }

// RecordEvidenceConflict records a no-op evidence bundle (duplicate assessment id).
func RecordEvidenceConflict() { evidenceConflictsTotal.Inc() }
