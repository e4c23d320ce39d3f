package classifier

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/imaging"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
)

func testSettings() *conf.ModelSettings {
	return &conf.ModelSettings{
		ImageSize: 4,
		Classes:   conf.DefaultClasses,
		Outputs:   OutputsAuto,
	}
}

func blankTensor(size int) imaging.Tensor {
	return imaging.Tensor{
		Data:  make([]float32, size*size*imaging.Channels),
		Shape: [4]int{1, size, size, imaging.Channels},
	}
}

func TestLoadMissingModelIsUnloaded(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Path = filepath.Join(t.TempDir(), "brain_tumor_model.tflite")

	h := Load(settings)
	require.NotNil(t, h)
	assert.False(t, h.Loaded())
	assert.Empty(t, h.Backend())

	_, err := h.Classify(context.Background(), blankTensor(4))
	require.ErrorIs(t, err, ErrModelNotLoaded)
	assert.Equal(t, "Model not loaded", err.Error())
}

func TestLoadUnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.h5")
	require.NoError(t, os.WriteFile(path, []byte("keras"), 0o600))

	settings := testSettings()
	settings.Path = path
	h := Load(settings)
	assert.False(t, h.Loaded())

	_, err := openBackend(settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

func TestLoadEmptyPath(t *testing.T) {
	t.Parallel()

	h := Load(testSettings())
	assert.False(t, h.Loaded())
}

func TestNilHandle(t *testing.T) {
	t.Parallel()

	var h *Handle
	assert.False(t, h.Loaded())
	_, err := h.Classify(context.Background(), blankTensor(4))
	require.ErrorIs(t, err, ErrModelNotLoaded)
	require.NoError(t, h.Close())
}

func TestClassifyProbabilities(t *testing.T) {
	t.Parallel()

	h, err := NewStatic(testSettings(), 0.01, 0.01, 0.97, 0.01)
	require.NoError(t, err)
	require.True(t, h.Loaded())
	assert.Equal(t, "static", h.Backend())

	res, err := h.Classify(context.Background(), blankTensor(4))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Index)
	assert.Equal(t, "No Tumor", res.Label)
	assert.InDelta(t, 0.97, res.Confidence, 1e-6)
	assert.InDeltaSlice(t, []float64{0.01, 0.01, 0.97, 0.01}, res.Probabilities, 1e-6)
}

func TestClassifyAutoAppliesSoftmaxToLogits(t *testing.T) {
	t.Parallel()

	h, err := NewStatic(testSettings(), 2, 1, 0.5, 3)
	require.NoError(t, err)

	res, err := h.Classify(context.Background(), blankTensor(4))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Index)
	assert.Equal(t, "Pituitary Tumor", res.Label)

	var sum float64
	for _, p := range res.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassifyOutputModes(t *testing.T) {
	t.Parallel()

	// already a distribution, forced through softmax
	settings := testSettings()
	settings.Outputs = OutputsLogits
	h, err := NewStatic(settings, 0.1, 0.2, 0.3, 0.4)
	require.NoError(t, err)
	res, err := h.Classify(context.Background(), blankTensor(4))
	require.NoError(t, err)
	assert.Less(t, res.Confidence, 0.4)

	// not a distribution, used as is
	settings = testSettings()
	settings.Outputs = OutputsProbabilities
	h, err = NewStatic(settings, 5, 1, 1, 1)
	require.NoError(t, err)
	res, err = h.Classify(context.Background(), blankTensor(4))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, res.Confidence, 1e-9)
}

func TestNewHandleRejectsMismatchedOutput(t *testing.T) {
	t.Parallel()

	_, err := NewHandle(&Static{Output: []float32{0.5, 0.5}}, testSettings())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
}

// shapedBackend reports a fixed input shape and records what Run receives.
type shapedBackend struct {
	Static
	shape []int64
	got   []float32
}

func (b *shapedBackend) InputShape() []int64 { return b.shape }

func (b *shapedBackend) Run(input []float32) ([]float32, error) {
	b.got = append([]float32(nil), input...)
	return b.Static.Run(input)
}

// rampTensor holds 0,1,2,... so pixel p channel c is p*3+c.
func rampTensor(size int) imaging.Tensor {
	t := blankTensor(size)
	for i := range t.Data {
		t.Data[i] = float32(i)
	}
	return t
}

func TestClassifyInputLayout(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.ImageSize = 2
	output := []float32{0.25, 0.25, 0.25, 0.25}

	tests := []struct {
		name  string
		shape []int64
		want  []float32
	}{
		{"nhwc", []int64{1, 2, 2, 3}, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
		{"nchw", []int64{1, 3, 2, 2}, []float32{0, 3, 6, 9, 1, 4, 7, 10, 2, 5, 8, 11}},
		{"unknown shape", nil, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &shapedBackend{Static: Static{Output: output}, shape: tt.shape}
			h, err := NewHandle(backend, settings)
			require.NoError(t, err)

			_, err = h.Classify(context.Background(), rampTensor(2))
			require.NoError(t, err)
			assert.Equal(t, tt.want, backend.got)
		})
	}
}

func TestNewHandleRejectsUnsupportedInputShape(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.ImageSize = 2

	for _, shape := range [][]int64{
		{1, 2, 2, 1},    // grayscale
		{1, 4, 4, 3},    // wrong size
		{2, 2, 2, 3},    // batch of two
		{12},            // flat
		{1, 3, 2, 2, 1}, // rank 5
	} {
		backend := &shapedBackend{Static: Static{Output: []float32{0.25, 0.25, 0.25, 0.25}}, shape: shape}
		_, err := NewHandle(backend, settings)
		require.Error(t, err, "shape %v", shape)
		assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
	}
}

func TestClassifyRejectsWrongOutputLength(t *testing.T) {
	t.Parallel()

	// a static backend with no fixed output size passes attach
	backend := &Static{}
	h, err := NewHandle(backend, testSettings())
	require.NoError(t, err)

	backend.Output = []float32{1, 0}
	_, err = h.Classify(context.Background(), blankTensor(4))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInference))
}

func TestClassifyRejectsWrongInputSize(t *testing.T) {
	t.Parallel()

	h, err := NewStatic(testSettings(), 0.25, 0.25, 0.25, 0.25)
	require.NoError(t, err)

	_, err = h.Classify(context.Background(), blankTensor(8))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestClassifyBackendError(t *testing.T) {
	t.Parallel()

	backend := &Static{Output: []float32{0.25, 0.25, 0.25, 0.25}, Err: errors.NewStd("invoke failed")}
	h, err := NewHandle(backend, testSettings())
	require.NoError(t, err)

	_, err = h.Classify(context.Background(), blankTensor(4))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInference))
	assert.Contains(t, err.Error(), "invoke failed")
}

func TestClassifyNonFiniteOutput(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	h, err := NewStatic(testSettings(), nan, 0, 0, 0)
	require.NoError(t, err)

	_, err = h.Classify(context.Background(), blankTensor(4))
	require.Error(t, err)
}

func TestClassifyCanceledContext(t *testing.T) {
	t.Parallel()

	backend := &Static{Output: []float32{0.25, 0.25, 0.25, 0.25}}
	h, err := NewHandle(backend, testSettings())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Classify(ctx, blankTensor(4))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Zero(t, backend.Calls())
}

func TestClassifyConcurrent(t *testing.T) {
	t.Parallel()

	backend := &Static{Output: []float32{0.1, 0.7, 0.1, 0.1}}
	h, err := NewHandle(backend, testSettings())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Classify(context.Background(), blankTensor(4))
			assert.NoError(t, err)
			assert.Equal(t, 1, res.Index)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(16), backend.Calls())
}

func TestCloseUnloads(t *testing.T) {
	t.Parallel()

	h, err := NewStatic(testSettings(), 0.25, 0.25, 0.25, 0.25)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	assert.False(t, h.Loaded())
	_, err = h.Classify(context.Background(), blankTensor(4))
	require.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestClassifierMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewClassifierMetrics(reg)
	require.NoError(t, err)

	h, err := NewStatic(testSettings(), 0.9, 0.05, 0.03, 0.02)
	require.NoError(t, err)
	h.SetMetrics(m)

	_, err = h.Classify(context.Background(), blankTensor(4))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "classifier_predictions_total")
	assert.Contains(t, names, "classifier_model_loaded")
	count, err := testutil.GatherAndCount(reg, "classifier_predictions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDetermineThreadCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, determineThreadCount(1))
	assert.GreaterOrEqual(t, determineThreadCount(0), 1)
	assert.LessOrEqual(t, determineThreadCount(1<<20), 1<<20)
}
