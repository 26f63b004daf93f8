// Package metrics exposes prometheus collectors for the webhook dispatcher
// and the signaling clients. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callbridge"

type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	signalingTotal   *prometheus.CounterVec
	signalingLatency *prometheus.HistogramVec
}

// New registers the collectors on reg. activeCalls backs the active calls
// gauge and may be nil.
func New(reg prometheus.Registerer, activeCalls func() int) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound call events by type and outcome.",
		}, []string{"event", "outcome"}),
		signalingTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signaling_requests_total",
			Help:      "Outbound signaling requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		signalingLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signaling_request_duration_seconds",
			Help:      "Outbound signaling round trip time.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op"}),
	}

	if activeCalls != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls currently tracked in the registry.",
		}, func() float64 { return float64(activeCalls()) })
	}
	return m
}

func (m *Metrics) ObserveWebhookEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) ObserveSignaling(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.signalingTotal.WithLabelValues(op, outcome).Inc()
	m.signalingLatency.WithLabelValues(op).Observe(d.Seconds())
}
