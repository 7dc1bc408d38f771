package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Roster metrics
	registeredUsers prometheus.Gauge
	groups          prometheus.Gauge

	// Session metrics
	connectionsAccepted  prometheus.Counter
	sessionsRegistered   prometheus.Counter
	sessionsUnregistered prometheus.Counter

	// Message metrics
	messagesReceived  *prometheus.CounterVec // by message type
	messagesSent      *prometheus.CounterVec // by message type
	deliveriesDropped prometheus.Counter

	// Broadcast metrics
	broadcastFanout   *prometheus.HistogramVec
	broadcastDuration *prometheus.HistogramVec
}

// NewMetrics creates a new metrics instance. Metrics register with the
// default Prometheus registry, so create at most one per process.
func NewMetrics() *Metrics {
	return &Metrics{
		registeredUsers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatrelay_registered_users",
				Help: "Current number of registered identities",
			},
		),
		groups: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatrelay_groups",
				Help: "Current number of groups, including the default group",
			},
		),
		connectionsAccepted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chatrelay_connections_accepted_total",
				Help: "Total number of accepted connections",
			},
		),
		sessionsRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chatrelay_sessions_registered_total",
				Help: "Total number of successful registrations",
			},
		),
		sessionsUnregistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chatrelay_sessions_unregistered_total",
				Help: "Total number of sessions removed at teardown",
			},
		),
		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatrelay_messages_received_total",
				Help: "Total number of messages received from clients by type",
			},
			[]string{"type"},
		),
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatrelay_messages_sent_total",
				Help: "Total number of messages delivered to clients by type",
			},
			[]string{"type"},
		),
		deliveriesDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chatrelay_deliveries_dropped_total",
				Help: "Total number of per-target deliveries dropped on write failure",
			},
		),
		broadcastFanout: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatrelay_broadcast_fanout",
				Help:    "Number of clients that received each roster broadcast",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"type"},
		),
		broadcastDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatrelay_broadcast_duration_seconds",
				Help:    "Time taken to fan a roster broadcast out to all clients",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
	}
}

// RecordRegisteredUsers updates the registered identity count
func (m *Metrics) RecordRegisteredUsers(count int) {
	m.registeredUsers.Set(float64(count))
}

// RecordGroups updates the group count
func (m *Metrics) RecordGroups(count int) {
	m.groups.Set(float64(count))
}

// RecordConnectionAccepted increments the accepted connection counter
func (m *Metrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

// RecordSessionRegistered increments the registration counter
func (m *Metrics) RecordSessionRegistered() {
	m.sessionsRegistered.Inc()
}

// RecordSessionUnregistered increments the teardown counter
func (m *Metrics) RecordSessionUnregistered() {
	m.sessionsUnregistered.Inc()
}

// RecordMessageReceived increments the received counter for a type
func (m *Metrics) RecordMessageReceived(messageType string) {
	m.messagesReceived.WithLabelValues(messageType).Inc()
}

// RecordMessagesSent adds to the sent counter for a type
func (m *Metrics) RecordMessagesSent(messageType string, count int) {
	m.messagesSent.WithLabelValues(messageType).Add(float64(count))
}

// RecordDeliveryDropped increments the dropped delivery counter
func (m *Metrics) RecordDeliveryDropped() {
	m.deliveriesDropped.Inc()
}

// RecordBroadcastFanout records how many clients received a broadcast
func (m *Metrics) RecordBroadcastFanout(broadcastType string, recipientCount int) {
	m.broadcastFanout.WithLabelValues(broadcastType).Observe(float64(recipientCount))
}

// RecordBroadcastDuration records how long a broadcast took
func (m *Metrics) RecordBroadcastDuration(broadcastType string, durationSeconds float64) {
	m.broadcastDuration.WithLabelValues(broadcastType).Observe(durationSeconds)
}
