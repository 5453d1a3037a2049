package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of plan requests.
const (
	outcomePlan    = "plan"
	outcomePending = "pending"
	outcomeError   = "error"
)

// Metrics exposes Prometheus collectors that report endpoint activity.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// MustNewMetrics constructs and registers the endpoint collectors. Any
// registration error panics, which surfaces duplicate wiring early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messplanner",
			Subsystem: "http",
			Name:      "plan_requests_total",
			Help:      "Plan requests by outcome (plan, pending, error).",
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "messplanner",
			Subsystem: "http",
			Name:      "plan_duration_seconds",
			Help:      "Time until a plan request was answered.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
		[]string{"outcome"},
	)
	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "messplanner",
			Subsystem: "http",
			Name:      "plan_requests_in_flight",
			Help:      "Plan requests currently being served.",
		},
	)

	reg.MustRegister(requests, duration, inflight)

	return &Metrics{requests: requests, duration: duration, inflight: inflight}
}

func (m *Metrics) begin() func(outcome string) {
	start := time.Now()
	m.inflight.Inc()
	return func(outcome string) {
		m.inflight.Dec()
		m.requests.WithLabelValues(outcome).Inc()
		m.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}
