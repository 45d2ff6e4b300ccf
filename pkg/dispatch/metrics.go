package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup results.
const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"
)

const statusOK = "ok"

// Metrics holds the dispatcher's Prometheus collectors.
type Metrics struct {
	dispatches   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
}

// NewMetrics creates the dispatcher collectors and registers them on reg.
// It panics if collectors with the same names are already registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_dispatch_total",
				Help: "Total of dispatched operations",
			},
			[]string{"backend", "kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gateway_dispatch_duration_seconds",
				Help: "Duration of dispatched operations, cache hits included",
				Buckets: []float64{
					.001, .005, .01, .025, .05, .1, .25, .5, 1,
					2, 5, 10, 30, 60,
				},
			},
			[]string{"backend", "kind", "status"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cache_lookups_total",
				Help: "Total of result cache lookups",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.dispatches, m.duration, m.cacheLookups)
	return m
}

func (m *Metrics) observe(backendName, kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"backend": backendName,
		"kind":    kind,
		"status":  status,
	}
	m.dispatches.With(labels).Inc()
	m.duration.With(labels).Observe(elapsed.Seconds())
}

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
