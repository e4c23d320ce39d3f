package classifier

import (
	"sync/atomic"

	"github.com/mriscan/braintumor-go/internal/conf"
)

// Static is a Backend that returns a fixed output. It is meant for tests
// and for running the service without native inference libraries.
type Static struct {
	Output []float32
	Err    error // returned by Run when set

	calls atomic.Int64
}

// NewStatic returns a loaded handle whose model always produces output.
func NewStatic(settings *conf.ModelSettings, output ...float32) (*Handle, error) {
	return NewHandle(&Static{Output: output}, settings)
}

func (s *Static) Name() string        { return "static" }
func (s *Static) InputShape() []int64 { return nil }
func (s *Static) OutputSize() int     { return len(s.Output) }

// Calls returns how many times Run was invoked.
func (s *Static) Calls() int64 { return s.calls.Load() }

func (s *Static) Run([]float32) ([]float32, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]float32(nil), s.Output...), nil
}

func (s *Static) Close() error { return nil }
