package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	WaitingUsers   prometheus.Gauge
	ActiveSessions prometheus.Gauge
	Matches        prometheus.Counter
	SessionsEnded  *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec
	Pushes         *prometheus.CounterVec
	Archives       *prometheus.CounterVec
}

// New creates the instruments on a fresh registry
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		WaitingUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_users",
			Help:      "Number of users waiting for a match.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active game sessions.",
		}),
		Matches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Number of pairs created by the matchmaker.",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Ended sessions by reason.",
		}, []string{"reason"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected game requests by error code.",
		}, []string{"code"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		Pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "APNs pushes by outcome.",
		}, []string{"outcome"}),
		Archives: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_archives_total",
			Help:      "Transcript uploads by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) SetQueueSize(n int) {
	if m == nil {
		return
	}
	m.WaitingUsers.Set(float64(n))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) MatchCreated() {
	if m == nil {
		return
	}
	m.Matches.Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) Rejected(code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) PushSent(outcome string) {
	if m == nil {
		return
	}
	m.Pushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Archived(outcome string) {
	if m == nil {
		return
	}
	m.Archives.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
