package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics tracks preprocessing, inference and the predicted class mix.
type ClassifierMetrics struct {
	registry *prometheus.Registry

	PredictionsTotal *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	ModelLoaded      prometheus.Gauge
	Confidence       prometheus.Histogram
}

// NewClassifierMetrics creates and registers classifier metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}

	m.PredictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classifier_predictions_total",
		Help: "Total number of predictions by predicted class",
	}, []string{"class"})

	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classifier_stage_duration_seconds",
		Help:    "Time spent in preprocessing and model inference",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"stage"})

	m.ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classifier_errors_total",
		Help: "Total number of classifier pipeline errors by stage",
	}, []string{"stage"})

	m.ModelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "classifier_model_loaded",
		Help: "1 when a model is loaded, 0 otherwise",
	})

	m.Confidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "classifier_prediction_confidence",
		Help:    "Confidence of the predicted class",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	for _, c := range []prometheus.Collector{m.PredictionsTotal, m.StageDuration, m.ErrorsTotal, m.ModelLoaded, m.Confidence} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordPrediction counts a successful prediction.
func (m *ClassifierMetrics) RecordPrediction(class string, confidence float64) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(class).Inc()
	m.Confidence.Observe(confidence)
}

// ObserveStage records how long a pipeline stage took.
func (m *ClassifierMetrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordError counts a failure in a pipeline stage.
func (m *ClassifierMetrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}

// SetModelLoaded reports whether a model is available.
func (m *ClassifierMetrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}
