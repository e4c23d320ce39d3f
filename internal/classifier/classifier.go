// Package classifier runs the brain tumor image model.
//
// A Handle is always returned by Load. When the model artifact is missing or
// cannot be initialised the handle stays unloaded and Classify reports
// ErrModelNotLoaded, letting the web service start without a model.
package classifier

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/imaging"
	"github.com/mriscan/braintumor-go/internal/logger"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
)

// ErrModelNotLoaded is returned by Classify on a handle without a model.
var ErrModelNotLoaded = errors.NewStd("Model not loaded")

// Output interpretation modes.
const (
	OutputsAuto          = "auto"
	OutputsProbabilities = "probabilities"
	OutputsLogits        = "logits"
)

// probabilityTolerance is how far a vector may sum from 1 and still count as probabilities.
const probabilityTolerance = 1e-3

// Backend is a loaded inference engine.
type Backend interface {
	Name() string
	// InputShape is the model's input dimensions, nil if unknown.
	// Rank 4 shapes may be NHWC or NCHW.
	InputShape() []int64
	// OutputSize is the number of scores the model produces, 0 if unknown.
	OutputSize() int
	Run(input []float32) ([]float32, error)
	Close() error
}

// Result is the outcome of classifying one image.
type Result struct {
	Probabilities []float64 // one per class
	Index         int
	Label         string
	Confidence    float64 // probability of Index
}

// Handle owns the model. It is safe for concurrent use.
type Handle struct {
	mu        sync.Mutex
	backend   Backend
	path      string
	classes   []string
	imageSize int
	outputs   string
	metrics   *metrics.ClassifierMetrics

	// channelsFirst is set when the backend takes NCHW input
	channelsFirst bool
}

func newHandle(settings *conf.ModelSettings) *Handle {
	outputs := settings.Outputs
	if outputs == "" {
		outputs = OutputsAuto
	}
	classes := settings.Classes
	if len(classes) == 0 {
		classes = conf.DefaultClasses
	}
	size := settings.ImageSize
	if size <= 0 {
		size = 224
	}
	return &Handle{
		path:      settings.Path,
		classes:   append([]string(nil), classes...),
		imageSize: size,
		outputs:   outputs,
	}
}

// Load opens the configured model. It never fails: on error the returned
// handle is unloaded and the problem is logged.
func Load(settings *conf.ModelSettings) *Handle {
	h := newHandle(settings)
	log := GetLogger()
	start := time.Now()

	backend, err := openBackend(settings)
	if err == nil {
		err = h.attach(backend)
	}
	if err != nil {
		log.Warn("model not loaded, predictions will be refused",
			logger.String("path", settings.Path),
			logger.Error(err))
		return h
	}

	log.Info("model loaded",
		logger.String("path", settings.Path),
		logger.String("backend", backend.Name()),
		logger.Int("classes", len(h.classes)),
		logger.Int("image_size", h.imageSize),
		logger.Bool("channels_first", h.channelsFirst),
		logger.Duration("duration", time.Since(start)))
	return h
}

// NewHandle wraps an already opened backend. A nil backend yields an unloaded handle.
func NewHandle(backend Backend, settings *conf.ModelSettings) (*Handle, error) {
	h := newHandle(settings)
	if backend == nil {
		return h, nil
	}
	if err := h.attach(backend); err != nil {
		return nil, err
	}
	return h, nil
}

// attach checks the backend's tensor shapes and takes ownership of it.
func (h *Handle) attach(backend Backend) error {
	channelsFirst, err := h.inputLayout(backend.InputShape())
	if err != nil {
		_ = backend.Close()
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(h.path, backend.Name()).
			Build()
	}
	if out := backend.OutputSize(); out != 0 && out != len(h.classes) {
		_ = backend.Close()
		return errors.Newf("model has %d outputs but %d classes are configured", out, len(h.classes)).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(h.path, backend.Name()).
			Build()
	}
	h.backend = backend
	h.channelsFirst = channelsFirst
	return nil
}

// inputLayout matches a model input shape against the size×size RGB tensors
// produced by imaging and reports whether the model wants channels first.
func (h *Handle) inputLayout(shape []int64) (bool, error) {
	if len(shape) == 0 {
		return false, nil
	}
	size, ch := int64(h.imageSize), int64(imaging.Channels)
	if len(shape) == 4 && shape[0] == 1 {
		switch {
		case shape[1] == size && shape[2] == size && shape[3] == ch:
			return false, nil
		case shape[1] == ch && shape[2] == size && shape[3] == size:
			return true, nil
		}
	}
	return false, fmt.Errorf("model input shape %v does not match %dx%d RGB in NHWC or NCHW layout", shape, size, size)
}

func openBackend(settings *conf.ModelSettings) (Backend, error) {
	if settings.Path == "" {
		return nil, errors.Newf("model path not configured").
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}

	switch ext := strings.ToLower(filepath.Ext(settings.Path)); ext {
	case ".tflite":
		return openTFLite(settings)
	case ".onnx":
		return openONNX(settings)
	default:
		return nil, errors.Newf("unsupported model format %q", ext).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(settings.Path, "").
			Build()
	}
}

// SetMetrics attaches classifier metrics.
func (h *Handle) SetMetrics(m *metrics.ClassifierMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
	m.SetModelLoaded(h.backend != nil)
}

// Loaded reports whether a model is available.
func (h *Handle) Loaded() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backend != nil
}

// Backend returns the backend name, or "" when unloaded.
func (h *Handle) Backend() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.backend == nil {
		return ""
	}
	return h.backend.Name()
}

// Classes returns the label for each output index.
func (h *Handle) Classes() []string {
	return append([]string(nil), h.classes...)
}

// ImageSize is the square input edge in pixels.
func (h *Handle) ImageSize() int { return h.imageSize }

// Classify runs the model on a preprocessed tensor.
func (h *Handle) Classify(ctx context.Context, t imaging.Tensor) (Result, error) {
	if h == nil {
		return Result{}, ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return Result{}, errors.New(err).
			Component("classifier").
			Category(errors.CategoryCancellation).
			Build()
	}

	want := h.imageSize * h.imageSize * imaging.Channels
	if t.Len() != want {
		return Result{}, errors.Newf("input tensor has %d values, expected %d", t.Len(), want).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.backend == nil {
		return Result{}, ErrModelNotLoaded
	}

	input := t.Data
	if h.channelsFirst {
		input = t.ChannelsFirst()
	}

	start := time.Now()
	raw, err := h.backend.Run(input)
	elapsed := time.Since(start)
	if err != nil {
		h.metrics.RecordError(metrics.StageInference)
		return Result{}, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelInference).
			ModelContext(h.path, h.backend.Name()).
			Timing("inference", elapsed).
			Build()
	}
	h.metrics.ObserveStage(metrics.StageInference, elapsed)

	res, err := h.interpret(raw)
	if err != nil {
		h.metrics.RecordError(metrics.StageInference)
		return Result{}, err
	}
	h.metrics.RecordPrediction(res.Label, res.Confidence)

	GetLogger().Debug("image classified",
		logger.String("label", res.Label),
		logger.Float64("confidence", res.Confidence),
		logger.Duration("duration", elapsed))
	return res, nil
}

// interpret turns raw model output into a Result.
func (h *Handle) interpret(raw []float32) (Result, error) {
	if len(raw) != len(h.classes) {
		return Result{}, errors.Newf("model returned %d scores for %d classes", len(raw), len(h.classes)).
			Component("classifier").
			Category(errors.CategoryModelInference).
			ModelContext(h.path, h.backend.Name()).
			Build()
	}

	probs := make([]float64, len(raw))
	for i, v := range raw {
		probs[i] = float64(v)
		if math.IsNaN(probs[i]) || math.IsInf(probs[i], 0) {
			return Result{}, errors.Newf("model returned a non-finite score at index %d", i).
				Component("classifier").
				Category(errors.CategoryModelInference).
				Build()
		}
	}

	switch h.outputs {
	case OutputsLogits:
		softmax(probs)
	case OutputsProbabilities:
	default:
		if !isProbabilityVector(probs) {
			softmax(probs)
		}
	}

	idx := floats.MaxIdx(probs)
	return Result{
		Probabilities: probs,
		Index:         idx,
		Label:         h.classes[idx],
		Confidence:    probs[idx],
	}, nil
}

func isProbabilityVector(v []float64) bool {
	for _, p := range v {
		if p < 0 || p > 1 {
			return false
		}
	}
	return math.Abs(floats.Sum(v)-1) <= probabilityTolerance
}

// softmax normalises v in place.
func softmax(v []float64) {
	m := floats.Max(v)
	floats.AddConst(-m, v)
	for i := range v {
		v[i] = math.Exp(v[i])
	}
	floats.Scale(1/floats.Sum(v), v)
}

// Close releases the model. The handle becomes unloaded.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.backend == nil {
		return nil
	}
	err := h.backend.Close()
	h.backend = nil
	h.metrics.SetModelLoaded(false)
	return err
}
