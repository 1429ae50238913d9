package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons reported on lingmeet_dropped_total.
const (
	DropNotConnected = "not_connected"
	DropOtherRoom    = "other_room"
	DropQueueFull    = "queue_full"
	DropInvalid      = "invalid"
)

type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Messages    *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg. A nil reg gives
// unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "lingmeet_connections",
			Help: "Open signaling connections.",
		}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "lingmeet_rooms",
			Help: "Rooms with at least one member.",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingmeet_messages_total",
			Help: "Inbound messages by type.",
		}, []string{"type"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingmeet_dropped_total",
			Help: "Messages the relay did not deliver, by reason.",
		}, []string{"reason"}),
	}
}
