package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry returns a registry preloaded with Go runtime and process metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Recorder implements the domain Metrics interface with Prometheus.
type Recorder struct {
	classifications *prometheus.CounterVec
	ingest          *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastScore       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
}

// New creates a recorder and registers its collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motionpull_classifications_total",
				Help: "Classified windows by most likely activity",
			},
			[]string{"label"},
		),
		ingest: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motionpull_ingest_total",
				Help: "Notifications by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motionpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "motionpull_last_score",
				Help: "Score of the most likely activity in the last classified window",
			},
			[]string{"label"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "motionpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(r.classifications, r.ingest, r.errorsTotal, r.lastScore, r.latency)
	return r
}

// RecordClassification counts a classified window under its top label.
func (r *Recorder) RecordClassification(label string, score float64) {
	r.classifications.WithLabelValues(label).Inc()
	r.lastScore.WithLabelValues(label).Set(score)
}

// RecordIngest counts a notification outcome.
func (r *Recorder) RecordIngest(outcome string) {
	r.ingest.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
