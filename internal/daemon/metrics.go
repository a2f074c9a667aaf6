package daemon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xdg/backchannel/internal/request"
)

// Metrics holds the daemon's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	requests     *prometheus.CounterVec
	inFlight     prometheus.Gauge
	confirmation prometheus.Histogram
	execution    prometheus.Histogram
}

// NewMetrics creates the collectors on a fresh registry. queueDepth reports
// the number of undecided requests at scrape time.
func NewMetrics(queueDepth func() int) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backchannel_requests_total",
			Help: "Relay requests by terminal outcome.",
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backchannel_requests_in_flight",
			Help: "Requests received and not yet resolved.",
		}),
		confirmation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backchannel_confirmation_seconds",
			Help:    "Time from receipt to the user's decision, including queueing.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		execution: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backchannel_execution_seconds",
			Help:    "Run time of approved commands.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
		}),
	}
	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "backchannel_queue_depth",
		Help: "Requests waiting for or awaiting confirmation.",
	}, func() float64 {
		if queueDepth == nil {
			return 0
		}
		return float64(queueDepth())
	})

	m.Registry.MustRegister(m.requests, m.inFlight, m.confirmation, m.execution, depth)
	// Pre-create every outcome so all series exist from the first scrape.
	for _, o := range []request.Outcome{
		request.OutcomeCompleted, request.OutcomeDenied,
		request.OutcomeTimedOut, request.OutcomeExecutionFailed,
	} {
		m.requests.WithLabelValues(string(o))
	}
	return m
}

func (m *Metrics) requestStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) requestFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) countOutcome(o request.Outcome) {
	if m != nil {
		m.requests.WithLabelValues(string(o)).Inc()
	}
}

func (m *Metrics) observeConfirmation(d time.Duration) {
	if m != nil {
		m.confirmation.Observe(d.Seconds())
	}
}

func (m *Metrics) observeExecution(d time.Duration) {
	if m != nil {
		m.execution.Observe(d.Seconds())
	}
}
