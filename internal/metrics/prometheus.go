package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the engine collectors with reg. A nil reg
// uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payengine",
			Name:      "events_total",
			Help:      "Engine events by name and kind.",
		},
		[]string{"event", LabelKind},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payengine",
			Name:      "operation_seconds",
			Help:      "Handshake and transaction latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", LabelOutcome},
	)
	for _, c := range []prometheus.Collector{events, latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &PrometheusRecorder{events: events, latency: latency}, nil
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.events.With(prometheus.Labels{
		"event":   name,
		LabelKind: labels[LabelKind],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.latency.With(prometheus.Labels{
		"operation":  name,
		LabelOutcome: labels[LabelOutcome],
	}).Observe(d.Seconds())
}
