package classifier

import (
	"fmt"
	"os"
	"runtime"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
)

const backendTFLite = "tflite"

// tfliteBackend runs a TensorFlow Lite model. The interpreter is not
// goroutine-safe; Handle serialises calls.
type tfliteBackend struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inputShape  []int64
	outputSize  int
}

func openTFLite(settings *conf.ModelSettings) (Backend, error) {
	start := time.Now()

	modelData, err := os.ReadFile(settings.Path)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(settings.Path, backendTFLite).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(settings.Path, backendTFLite).
			Context("model_size_kb", len(modelData)/1024).
			Build()
	}

	threads := determineThreadCount(settings.Threads)
	options := tflite.NewInterpreterOptions()

	log := GetLogger()
	if settings.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	b := &tfliteBackend{model: model, options: options}
	b.interpreter = tflite.NewInterpreter(model, options)
	if b.interpreter == nil {
		_ = b.Close()
		return nil, initError(settings.Path, "cannot create interpreter")
	}
	if status := b.interpreter.AllocateTensors(); status != tflite.OK {
		_ = b.Close()
		return nil, initError(settings.Path, "tensor allocation failed")
	}

	input := b.interpreter.GetInputTensor(0)
	output := b.interpreter.GetOutputTensor(0)
	if input == nil || output == nil {
		_ = b.Close()
		return nil, initError(settings.Path, "model has no input or output tensor")
	}
	if input.Type() != tflite.Float32 || output.Type() != tflite.Float32 {
		_ = b.Close()
		return nil, initError(settings.Path, "only float32 models are supported")
	}
	b.inputShape = tensorShape(input)
	b.outputSize = output.Dim(output.NumDims() - 1)

	// TFLite keeps its own copy of the flatbuffer
	runtime.GC()

	log.Debug("tflite interpreter ready",
		logger.Int("threads", threads),
		logger.Bool("xnnpack", settings.UseXNNPACK),
		logger.Any("input_shape", b.inputShape),
		logger.Int("output_size", b.outputSize))
	return b, nil
}

func tensorShape(t *tflite.Tensor) []int64 {
	shape := make([]int64, t.NumDims())
	for i := range shape {
		shape[i] = int64(t.Dim(i))
	}
	return shape
}

func initError(path, msg string) error {
	return errors.Newf("%s", msg).
		Component("classifier").
		Category(errors.CategoryModelInit).
		ModelContext(path, backendTFLite).
		Build()
}

func (b *tfliteBackend) Name() string        { return backendTFLite }
func (b *tfliteBackend) InputShape() []int64 { return b.inputShape }
func (b *tfliteBackend) OutputSize() int     { return b.outputSize }

func (b *tfliteBackend) Run(input []float32) ([]float32, error) {
	in := b.interpreter.GetInputTensor(0)
	if in == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(in.Float32s(), input)

	if status := b.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	out := b.interpreter.GetOutputTensor(0)
	scores := make([]float32, b.outputSize)
	copy(scores, out.Float32s())
	return scores, nil
}

func (b *tfliteBackend) Close() error {
	if b.interpreter != nil {
		b.interpreter.Delete()
		b.interpreter = nil
	}
	if b.options != nil {
		b.options.Delete()
		b.options = nil
	}
	if b.model != nil {
		b.model.Delete()
		b.model = nil
	}
	return nil
}
