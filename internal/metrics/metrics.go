// Package metrics holds the Prometheus collectors of the mission engine.
// Every method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "drone_engine"

// Metrics groups the engine's collectors.
type Metrics struct {
	reservations      *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	ticks             prometheus.Counter
	activeSimulations prometheus.Gauge
	bridgeMessages    *prometheus.CounterVec
	publishedEvents   *prometheus.CounterVec
	broadcastClients  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drone_reservations_total",
			Help:      "Drone reservation attempts by result (reserved, no_capacity, error, released).",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mission_transitions_total",
			Help:      "Committed mission transitions by target status.",
		}, []string{"status"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_ticks_total",
			Help:      "Flight simulation ticks executed.",
		}),
		activeSimulations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_simulations",
			Help:      "Missions currently being simulated.",
		}),
		bridgeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_messages_total",
			Help:      "Inbound queue messages by outcome (ack, requeue, dead_letter, duplicate).",
		}, []string{"outcome"}),
		publishedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_events_total",
			Help:      "Outbound events by result (ok, error).",
		}, []string{"result"}),
		broadcastClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_clients",
			Help:      "Connected real-time subscribers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.reservations, m.transitions, m.ticks, m.activeSimulations,
			m.bridgeMessages, m.publishedEvents, m.broadcastClients)
	}
	return m
}

func (m *Metrics) Reservation(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

// SimulationStarted and SimulationEnded track the active simulation gauge.
func (m *Metrics) SimulationStarted() {
	if m == nil {
		return
	}
	m.activeSimulations.Inc()
}

func (m *Metrics) SimulationEnded() {
	if m == nil {
		return
	}
	m.activeSimulations.Dec()
}

func (m *Metrics) BridgeMessage(outcome string) {
	if m == nil {
		return
	}
	m.bridgeMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Published(result string) {
	if m == nil {
		return
	}
	m.publishedEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBroadcastClients(n int) {
	if m == nil {
		return
	}
	m.broadcastClients.Set(float64(n))
}
