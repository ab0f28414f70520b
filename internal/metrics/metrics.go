package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsActive      prometheus.Gauge
	SessionsCreated     prometheus.Counter
	EventsPublished     *prometheus.CounterVec
	DeliveryFailures    prometheus.Counter
	AnswersSubmitted    *prometheus.CounterVec
	WatchdogExpirations prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trivia_sessions_active",
			Help: "Sessions currently held in the registry",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivia_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trivia_events_published_total",
			Help: "State update events handed to the hub, by type",
		}, []string{"type"}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivia_event_delivery_failures_total",
			Help: "Per-subscriber deliveries that failed or timed out",
		}),
		AnswersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trivia_answers_submitted_total",
			Help: "Accepted answers, by correctness",
		}, []string{"correct"}),
		WatchdogExpirations: factory.NewCounter(prometheus.CounterOpts{
			Name: "trivia_watchdog_expirations_total",
			Help: "Sessions ended because their time budget ran out",
		}),
	}
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionDeleted() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

func (m *Metrics) AnswerSubmitted(correct bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.AnswersSubmitted.WithLabelValues(label).Inc()
}

func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.WatchdogExpirations.Inc()
}
