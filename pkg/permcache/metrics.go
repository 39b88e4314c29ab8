package permcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters shared by all permission caches.
// A nil *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	LoadErrors    *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
}

// NewMetrics creates and registers cache metrics against the registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperstack_permcache_hits_total",
				Help: "Permission cache hits by cache name",
			},
			[]string{"cache"},
		),
		Misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperstack_permcache_misses_total",
				Help: "Permission cache misses by cache name",
			},
			[]string{"cache"},
		),
		LoadErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperstack_permcache_load_errors_total",
				Help: "Permission cache loader failures by cache name",
			},
			[]string{"cache"},
		),
		Invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperstack_permcache_invalidations_total",
				Help: "Permission cache entry invalidations by cache name",
			},
			[]string{"cache"},
		),
	}
	registry.MustRegister(m.Hits, m.Misses, m.LoadErrors, m.Invalidations)
	return m
}

func (m *Metrics) recordHit(cache string) {
	if m != nil {
		m.Hits.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) recordMiss(cache string) {
	if m != nil {
		m.Misses.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) recordLoadError(cache string) {
	if m != nil {
		m.LoadErrors.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) recordInvalidation(cache string) {
	if m != nil {
		m.Invalidations.WithLabelValues(cache).Inc()
	}
}
