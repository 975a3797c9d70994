package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"LineGuard/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trainingRuns *prometheus.CounterVec
	trainingTime prometheus.Histogram
	quality      *prometheus.GaugeVec
	predictions  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder whose collectors register with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		trainingRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lineguard_training_runs_total",
				Help: "Training runs by outcome",
			},
			[]string{"status"},
		),
		trainingTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lineguard_training_duration_seconds",
				Help:    "Wall time of successful training runs",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		quality: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lineguard_model_quality",
				Help: "Evaluation metrics of the last trained model",
			},
			[]string{"metric"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lineguard_predictions_total",
				Help: "Rows scored by source",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lineguard_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lineguard_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTraining counts a training outcome; seconds is observed for successes.
func (r *Recorder) RecordTraining(status string, seconds float64) {
	r.trainingRuns.WithLabelValues(status).Inc()
	if status == "ok" {
		r.trainingTime.Observe(seconds)
	}
}

func (r *Recorder) RecordModelQuality(m models.Metrics) {
	r.quality.WithLabelValues("accuracy").Set(m.Accuracy)
	r.quality.WithLabelValues("precision").Set(m.Precision)
	r.quality.WithLabelValues("recall").Set(m.Recall)
	r.quality.WithLabelValues("f1").Set(m.F1)
}

func (r *Recorder) RecordPredictions(source string, n int) {
	r.predictions.WithLabelValues(source).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordTraining(string, float64)    {}
func (Nop) RecordModelQuality(models.Metrics) {}
func (Nop) RecordPredictions(string, int)     {}
func (Nop) RecordError(string)                {}
func (Nop) RecordLatency(string, float64)     {}
