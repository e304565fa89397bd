// Package metrics exposes fan-out telemetry through a dedicated Prometheus
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds all Prometheus metrics for the fan-out service.
type Registry struct {
	reg *prometheus.Registry

	// Pipeline counters
	TicksTotal         prometheus.Counter
	DeltasEmitted      prometheus.Counter
	UpdatesSent        prometheus.Counter
	UpdatesDropped     *prometheus.CounterVec
	PredicateErrors    prometheus.Counter

	// Gauges
	ActiveSessions      prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	Instruments         prometheus.Gauge

	// Timing
	TickDuration prometheus.Histogram
}

// DropReason labels for UpdatesDropped.
const (
	DropBucket    = "bucket"
	DropPacing    = "pacing"
	DropFilter    = "filter"
	DropTransport = "transport"
)

// NewRegistry creates and registers the full metric set.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blotterfeed_ticks_total",
			Help: "Total simulator ticks executed",
		}),
		DeltasEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blotterfeed_deltas_emitted_total",
			Help: "Total non-empty deltas emitted by the delta engine",
		}),
		UpdatesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blotterfeed_updates_sent_total",
			Help: "Total instrument updates handed to the transport",
		}),
		UpdatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blotterfeed_updates_dropped_total",
			Help: "Updates dropped per gate",
		}, []string{"reason"}),
		PredicateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blotterfeed_predicate_errors_total",
			Help: "Predicate evaluations collapsed to non-match by an error",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blotterfeed_active_sessions",
			Help: "Currently connected subscriber sessions",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blotterfeed_active_subscriptions",
			Help: "Currently registered subscriptions",
		}),
		Instruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blotterfeed_instruments",
			Help: "Instruments in the catalog",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blotterfeed_tick_duration_seconds",
			Help:    "Duration of one full simulator pass",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}
	r.reg.MustRegister(
		r.TicksTotal, r.DeltasEmitted, r.UpdatesSent, r.UpdatesDropped,
		r.PredicateErrors, r.ActiveSessions, r.ActiveSubscriptions,
		r.Instruments, r.TickDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// CounterValue gathers the current value of a counter by metric name,
// summed over label combinations. Intended for tests and health reporting.
func (r *Registry) CounterValue(name string) float64 {
	families, err := r.reg.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				total += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}
