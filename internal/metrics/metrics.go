// Package metrics exposes Prometheus instrumentation for the gateway and
// message pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set bundles the application collectors. Collectors are registered against
// an explicit registry so tests can create isolated sets.
type Set struct {
	ConnectionsActive prometheus.Gauge
	FramesIn          prometheus.Counter
	FramesDropped     prometheus.Counter
	MessagesPersisted prometheus.Counter
}

// New creates and registers the application collectors.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "enclave_gateway_connections_active",
			Help: "Number of currently connected WebSocket clients",
		}),
		FramesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "enclave_gateway_frames_in_total",
			Help: "Total inbound WebSocket frames read",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "enclave_gateway_frames_dropped_total",
			Help: "Total outbound envelopes dropped due to full send queues or offline receivers",
		}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "enclave_messages_persisted_total",
			Help: "Total messages written to the store",
		}),
	}
}
