package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bulatminnakhmetov/media-relay/internal/relay"
)

func TestObserveRelay(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveRelay(relay.Result{Outcome: relay.OutcomeSuccess, Backend: "imgbb"}, time.Second)
	m.ObserveRelay(relay.Result{Outcome: relay.OutcomeSkipped, Backend: "imgbb", SkipReason: relay.SkipIneligible}, 0)
	m.ObserveRelay(relay.Result{Outcome: relay.OutcomeFailure, Backend: "ftp", FailureKind: relay.TransportError}, 0)
	m.ObserveRelay(relay.Result{Outcome: relay.OutcomeFailure, Backend: "ftp", FailureKind: relay.TransportError}, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("imgbb", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("imgbb", "skipped", "ineligible")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.results.WithLabelValues("ftp", "failure", "transport_error")))
}

func TestMustNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.ObserveRelay(relay.Result{Outcome: relay.OutcomeSuccess, Backend: "cdn"}, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(second.results.WithLabelValues("cdn", "success", "")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRelay(relay.Result{Backend: "cdn"}, time.Millisecond)
	})
}
