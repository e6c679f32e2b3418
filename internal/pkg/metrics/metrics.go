package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics webhook 与积分相关指标，使用独立 registry 便于测试
type Metrics struct {
	registry        *prometheus.Registry
	WebhookEvents   *prometheus.CounterVec
	CreditsGranted  *prometheus.CounterVec
	WebhookDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook events by provider, event type and outcome.",
		}, []string{"provider", "type", "outcome"}),
		CreditsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credits_granted_total",
			Help: "Credits granted to users by provider and reason.",
		}, []string{"provider", "reason"}),
		WebhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Webhook handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	reg.MustRegister(
		m.WebhookEvents,
		m.CreditsGranted,
		m.WebhookDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveEvent(provider, eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(provider, eventType, outcome).Inc()
}

func (m *Metrics) AddCredits(provider, reason string, amount int64) {
	if m == nil {
		return
	}
	m.CreditsGranted.WithLabelValues(provider, reason).Add(float64(amount))
}

func (m *Metrics) ObserveDuration(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.WebhookDuration.WithLabelValues(provider).Observe(seconds)
}
