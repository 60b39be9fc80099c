// Package metrics exposes Prometheus collectors for relay activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bulatminnakhmetov/media-relay/internal/relay"
)

// Metrics records relay outcomes and transfer durations.
type Metrics struct {
	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// MustNewMetrics registers the relay collectors with reg. A nil reg means the
// default registerer. Registering twice against the same registry reuses the
// existing collectors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	results := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "relay",
			Name:      "results_total",
			Help:      "Relay attempts by backend, outcome and failure or skip kind.",
		},
		[]string{"backend", "outcome", "kind"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "relay",
			Name:      "duration_seconds",
			Help:      "Wall time of a single relay call.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	if err := reg.Register(results); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		results = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(duration); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}

	return &Metrics{results: results, duration: duration}
}

// ObserveRelay records one finished relay call.
func (m *Metrics) ObserveRelay(res relay.Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	kind := ""
	switch {
	case res.Skipped():
		kind = string(res.SkipReason)
	case res.Failed():
		kind = string(res.FailureKind)
	}
	m.results.WithLabelValues(res.Backend, res.Outcome.String(), kind).Inc()
	m.duration.WithLabelValues(res.Backend).Observe(elapsed.Seconds())
}
