package classifier

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
)

const backendONNX = "onnx"

// the onnxruntime environment is process wide
var (
	ortMu   sync.Mutex
	ortRefs int
)

func acquireEnvironment(libPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortRefs == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
	}
	ortRefs++
	return nil
}

func releaseEnvironment() {
	ortMu.Lock()
	defer ortMu.Unlock()
	ortRefs--
	if ortRefs == 0 && ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			GetLogger().Warn("failed to destroy onnxruntime environment", logger.Error(err))
		}
	}
}

// onnxBackend runs an ONNX model with fixed, pre-allocated tensors.
type onnxBackend struct {
	closed  bool
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func openONNX(settings *conf.ModelSettings) (Backend, error) {
	if err := acquireEnvironment(settings.ONNXLib); err != nil {
		return nil, errors.New(fmt.Errorf("failed to initialize ONNX environment: %w", err)).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(settings.Path, backendONNX).
			Build()
	}

	b, err := newONNXBackend(settings)
	if err != nil {
		releaseEnvironment()
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(settings.Path, backendONNX).
			Build()
	}
	return b, nil
}

func newONNXBackend(settings *conf.ModelSettings) (*onnxBackend, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(settings.Path)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model must have one input and one output, has %d and %d", len(inputs), len(outputs))
	}
	if inputs[0].DataType != ort.TensorElementDataTypeFloat || outputs[0].DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("only float32 models are supported")
	}

	b := &onnxBackend{}
	b.input, err = ort.NewEmptyTensor[float32](fixedShape(inputs[0].Dimensions))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	b.output, err = ort.NewEmptyTensor[float32](fixedShape(outputs[0].Dimensions))
	if err != nil {
		_ = b.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = b.destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()
	if err := options.SetIntraOpNumThreads(determineThreadCount(settings.Threads)); err != nil {
		_ = b.destroy()
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	b.session, err = ort.NewAdvancedSession(settings.Path,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{b.input}, []ort.Value{b.output},
		options)
	if err != nil {
		_ = b.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	GetLogger().Debug("onnx session ready",
		logger.String("input", inputs[0].Name),
		logger.String("output", outputs[0].Name),
		logger.Any("input_shape", b.InputShape()),
		logger.Int("output_size", b.OutputSize()))
	return b, nil
}

// fixedShape replaces dynamic dimensions (batch) with 1.
func fixedShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

func (b *onnxBackend) Name() string        { return backendONNX }
func (b *onnxBackend) InputShape() []int64 { return b.input.GetShape().Clone() }
func (b *onnxBackend) OutputSize() int     { return int(b.output.GetShape().FlattenedSize()) }

func (b *onnxBackend) Run(input []float32) ([]float32, error) {
	copy(b.input.GetData(), input)
	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := b.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Close destroys the session and drops this backend's hold on the environment.
func (b *onnxBackend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.destroy()
	releaseEnvironment()
	return err
}

func (b *onnxBackend) destroy() error {
	var errs []error
	if b.session != nil {
		errs = append(errs, b.session.Destroy())
		b.session = nil
	}
	if b.input != nil {
		errs = append(errs, b.input.Destroy())
		b.input = nil
	}
	if b.output != nil {
		errs = append(errs, b.output.Destroy())
		b.output = nil
	}
	return errors.Join(errs...)
}
