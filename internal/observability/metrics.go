package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by every component of the
// authentication core (pipeline outcomes, cache behaviour, fetch latency).
type Metrics struct {
	PipelineOutcomes *prometheus.CounterVec
	PipelineDuration prometheus.Histogram

	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the process-wide singleton Metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Total number of AuthPipeline outcomes by result and deny reason",
		}, []string{"result", "reason"}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authcore",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "AuthPipeline check() latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits by cache name",
		}, []string{"cache"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses by cache name",
		}, []string{"cache"}),
		CacheEvictions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total cache evictions by cache name",
		}, []string{"cache"}),
		FetchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Subsystem: "fetcher",
			Name:      "requests_total",
			Help:      "Total outbound fetches by kind (discovery|keys) and status",
		}, []string{"kind", "status"}),
		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authcore",
			Subsystem: "fetcher",
			Name:      "duration_seconds",
			Help:      "Outbound fetch duration in seconds by kind",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"kind"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "authcore",
			Subsystem: "fetcher",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per issuer host (0=closed,1=half-open,2=open)",
		}, []string{"host"}),
	}
}

// RecordPipelineOutcome records a single AuthPipeline completion.
func (m *Metrics) RecordPipelineOutcome(result, reason string, d time.Duration) {
	m.PipelineOutcomes.WithLabelValues(result, reason).Inc()
	m.PipelineDuration.Observe(d.Seconds())
}
