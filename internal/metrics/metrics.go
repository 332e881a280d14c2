// Package metrics provides Prometheus metrics for the feed delivery engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	ConnectsTotal         prometheus.Counter
	DisconnectsTotal      prometheus.Counter
	DeliveriesTotal       prometheus.Counter
	DeliveryFailuresTotal prometheus.Counter
	SessionsActive        prometheus.Gauge
	RoomsActive           prometheus.Gauge
	InteractionsTotal     *prometheus.CounterVec
	ContextRefreshTotal   *prometheus.CounterVec
	CurationDuration      *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ConnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedhub_connects_total",
			Help: "Total number of accepted session attaches.",
		}),
		DisconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedhub_disconnects_total",
			Help: "Total number of completed session disconnects.",
		}),
		DeliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedhub_deliveries_total",
			Help: "Total number of per-recipient message deliveries.",
		}),
		DeliveryFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedhub_delivery_failures_total",
			Help: "Total number of per-recipient delivery failures.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedhub_sessions_active",
			Help: "Number of live sessions in the registry.",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedhub_rooms_active",
			Help: "Number of rooms with at least one member.",
		}),
		InteractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedhub_interactions_total",
				Help: "Total interaction events by action and result.",
			},
			[]string{"action", "result"},
		),
		ContextRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedhub_context_refresh_total",
				Help: "User context recomputations by result.",
			},
			[]string{"result"},
		),
		CurationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedhub_curation_duration_seconds",
				Help:    "Feed curation latency by variant.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"variant"},
		),
		registry: reg,
	}

	reg.MustRegister(m.ConnectsTotal)
	reg.MustRegister(m.DisconnectsTotal)
	reg.MustRegister(m.DeliveriesTotal)
	reg.MustRegister(m.DeliveryFailuresTotal)
	reg.MustRegister(m.SessionsActive)
	reg.MustRegister(m.RoomsActive)
	reg.MustRegister(m.InteractionsTotal)
	reg.MustRegister(m.ContextRefreshTotal)
	reg.MustRegister(m.CurationDuration)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observer hooks consumed by the hub.

func (m *Metrics) SessionOpened()  { m.ConnectsTotal.Inc() }
func (m *Metrics) SessionClosed()  { m.DisconnectsTotal.Inc() }
func (m *Metrics) Delivered()      { m.DeliveriesTotal.Inc() }
func (m *Metrics) DeliveryFailed() { m.DeliveryFailuresTotal.Inc() }

func (m *Metrics) HubGauges(sessions, rooms int) {
	m.SessionsActive.Set(float64(sessions))
	m.RoomsActive.Set(float64(rooms))
}

// ObserveInteraction is consumed by the feed session adapter.
func (m *Metrics) ObserveInteraction(action, result string) {
	m.InteractionsTotal.WithLabelValues(action, result).Inc()
}

// ObserveCuration is consumed by the curation service.
func (m *Metrics) ObserveCuration(variant string, seconds float64) {
	m.CurationDuration.WithLabelValues(variant).Observe(seconds)
}

// ObserveContextRefresh is consumed by the signals provider.
func (m *Metrics) ObserveContextRefresh(result string) {
	m.ContextRefreshTotal.WithLabelValues(result).Inc()
}
