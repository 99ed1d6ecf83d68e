package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ingestion pipeline counters. Hot-path updates are plain
// atomics; Prometheus reads them lazily through GaugeFunc collectors.
type Metrics struct {
	// Ingest path
	EventsReceived    atomic.Uint64 // submissions accepted at the boundary (HTTP + MQTT)
	EventsPersisted   atomic.Uint64 // rows written to the store
	EventsGateSkipped atomic.Uint64 // submissions broadcast but not persisted
	StoreErrors       atomic.Uint64 // failed store writes or reads

	// Fan-out
	BroadcastsSent     atomic.Uint64 // publish calls into the hub
	SubscribersDropped atomic.Uint64 // clients removed for failed delivery
	ActiveSubscribers  atomic.Uint64 // current live-feed connections

	// Synthetic source
	SimulatedEvents atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a private
// registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"detection_events_received_total", "Total detection submissions received", m.EventsReceived.Load},
		{"detection_events_persisted_total", "Total detection events written to the store", m.EventsPersisted.Load},
		{"detection_events_gate_skipped_total", "Total submissions broadcast but skipped by the save-interval gate", m.EventsGateSkipped.Load},
		{"detection_store_errors_total", "Total store read/write failures", m.StoreErrors.Load},
		{"detection_broadcasts_total", "Total events published to the broadcast hub", m.BroadcastsSent.Load},
		{"detection_subscribers_dropped_total", "Total live-feed subscribers dropped for failed delivery", m.SubscribersDropped.Load},
		{"detection_active_subscribers", "Current live-feed subscriber count", m.ActiveSubscribers.Load},
		{"detection_simulated_events_total", "Total events fabricated by the synthetic source", m.SimulatedEvents.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
