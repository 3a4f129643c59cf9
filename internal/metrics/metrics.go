// Package metrics exposes Prometheus metrics for rooms, matching and delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	roomsActive      prometheus.Gauge
	teachersOnline   prometheus.Gauge
	wsConnections    prometheus.Gauge
	submissions      *prometheus.CounterVec
	quizCompletions  *prometheus.CounterVec
	matches          *prometheus.CounterVec
	eventsDelivered  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	resultsRecorded  *prometheus.CounterVec
	forcedSubmission prometheus.Counter
	chatMessages     prometheus.Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry registers collectors on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

var global = NewManager() //nolint:gochecknoglobals // process-wide collectors

// NewManager builds a Manager with its own registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{namespace: "tutor_live"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)
	m.roomsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "quiz", Name: "rooms_active",
		Help: "Number of live quiz rooms in the registry",
	})
	m.teachersOnline = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "doubt", Name: "teachers_online",
		Help: "Number of teachers in the availability index",
	})
	m.wsConnections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "transport", Name: "ws_connections",
		Help: "Open websocket connections",
	})
	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "quiz", Name: "submissions_total",
		Help: "Accepted answer submissions",
	}, []string{"correct"})
	m.quizCompletions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "quiz", Name: "completions_total",
		Help: "Rooms that closed answering, by reason",
	}, []string{"reason"})
	m.matches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "doubt", Name: "matches_total",
		Help: "Doubt match attempts, by outcome",
	}, []string{"outcome"})
	m.eventsDelivered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "transport", Name: "events_delivered_total",
		Help: "Outbound events queued to connections",
	}, []string{"event"})
	m.eventsDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "transport", Name: "events_dropped_total",
		Help: "Outbound events dropped because a connection queue was full",
	}, []string{"event"})
	m.resultsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "quiz", Name: "results_recorded_total",
		Help: "Published result records persisted, by status",
	}, []string{"status"})
	m.forcedSubmission = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "quiz", Name: "forced_submissions_total",
		Help: "Null answers recorded because a question deadline passed",
	})
	m.chatMessages = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "doubt", Name: "chat_messages_total",
		Help: "Doubt chat messages stored and relayed",
	})
}

// Registry returns the registry backing m.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the global registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(global.registry, promhttp.HandlerOpts{})
}

// Global returns the process-wide manager.
func Global() *Manager { return global }

func SetRoomsActive(n int)         { global.roomsActive.Set(float64(n)) }
func SetTeachersOnline(n int)      { global.teachersOnline.Set(float64(n)) }
func IncWSConnections()            { global.wsConnections.Inc() }
func DecWSConnections()            { global.wsConnections.Dec() }
func RecordForcedSubmission(n int) { global.forcedSubmission.Add(float64(n)) }
func RecordChatMessage()           { global.chatMessages.Inc() }

func RecordSubmission(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	global.submissions.WithLabelValues(label).Inc()
}

// RecordQuizCompletion counts a room closing; reason is barrier, ended or deadline.
func RecordQuizCompletion(reason string) {
	global.quizCompletions.WithLabelValues(reason).Inc()
}

func RecordMatch(outcome string)         { global.matches.WithLabelValues(outcome).Inc() }
func RecordEventDelivered(event string)  { global.eventsDelivered.WithLabelValues(event).Inc() }
func RecordEventDropped(event string)    { global.eventsDropped.WithLabelValues(event).Inc() }
func RecordResultRecorded(status string) { global.resultsRecorded.WithLabelValues(status).Inc() }
