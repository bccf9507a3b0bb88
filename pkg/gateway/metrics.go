package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	connections prometheus.Gauge
	joins       *prometheus.CounterVec
	packets     *prometheus.CounterVec
	broadcasts  prometheus.Counter
	relayErrors prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "liveclass", Subsystem: "gateway",
			Name: "connections", Help: "Open signaling connections.",
		}),
		joins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveclass", Subsystem: "gateway",
			Name: "joins_total", Help: "Join attempts by result.",
		}, []string{"result"}),
		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveclass", Subsystem: "gateway",
			Name: "packets_total", Help: "Handled signaling packets by type.",
		}, []string{"type"}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclass", Subsystem: "gateway",
			Name: "broadcasts_total", Help: "Packets fanned out to session connections.",
		}),
		relayErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "liveclass", Subsystem: "gateway",
			Name: "relay_errors_total", Help: "Failed best-effort side-channel relays.",
		}),
	}
}
