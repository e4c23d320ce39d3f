package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mriscan/braintumor-go/internal/observability/metrics"
)

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func TestNewMetricsRegistersCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Classifier.RecordPrediction("No Tumor", 0.97)
	m.Classifier.RecordPrediction("No Tumor", 0.91)
	m.Classifier.ObserveStage(metrics.StageInference, 20*time.Millisecond)
	m.Classifier.SetModelLoaded(true)
	m.Datastore.RecordDbOperation(metrics.OpSavePrediction, "predictions", metrics.StatusSuccess, 3*time.Millisecond)
	m.HTTP.RecordRequest(http.MethodPost, "/predict", http.StatusOK, 50*time.Millisecond)
	m.HTTP.RecordErrorResponse("invalid_file_type")
	m.MQTT.SetConnectionStatus(false)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	predictions := findFamily(t, families, "classifier_predictions_total")
	require.Len(t, predictions.GetMetric(), 1)
	assert.InDelta(t, 2, predictions.GetMetric()[0].GetCounter().GetValue(), 0)
	assert.Equal(t, "No Tumor", predictions.GetMetric()[0].GetLabel()[0].GetValue())

	loaded := findFamily(t, families, "classifier_model_loaded")
	assert.InDelta(t, 1, loaded.GetMetric()[0].GetGauge().GetValue(), 0)

	ops := findFamily(t, families, "datastore_db_operations_total")
	assert.InDelta(t, 1, ops.GetMetric()[0].GetCounter().GetValue(), 0)

	codes := findFamily(t, families, "http_error_responses_total")
	assert.Equal(t, "invalid_file_type", codes.GetMetric()[0].GetLabel()[0].GetValue())
}

func TestMetricsHandlerExposition(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Classifier.RecordPrediction("Glioma Tumor", 0.8)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `classifier_predictions_total{class="Glioma Tumor"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNilCollectorsAreSafe(t *testing.T) {
	t.Parallel()

	var c *metrics.ClassifierMetrics
	var d *metrics.DatastoreMetrics
	var h *metrics.HTTPMetrics
	var q *metrics.MQTTMetrics

	assert.NotPanics(t, func() {
		c.RecordPrediction("x", 1)
		c.SetModelLoaded(false)
		d.RecordDbOperation("op", "t", metrics.StatusError, time.Second)
		d.RecordTransaction("committed")
		h.RecordRequest(http.MethodGet, "/", 200, time.Millisecond)
		q.IncrementErrors()
	})
}
