//go:build !onnxruntime

package engine

// This file provides the default, CGO-free engine. It is compiled when the
// 'onnxruntime' build tag is NOT set and refuses every model instead of
// pretending to run it.

const stubUnavailableMsg = "onnxruntime support not built (missing 'onnxruntime' build tag)"

// NewRuntime returns the engine compiled into this binary.
func NewRuntime(opts Options) (Engine, error) {
	return stubEngine{}, nil
}

type stubEngine struct{}

func (stubEngine) Name() string { return "stub" }

func (stubEngine) Ready() bool { return false }

func (stubEngine) Create(cfg Config, model, params []byte) (Predictor, error) {
	return nil, ErrDependencyUnavailable(stubUnavailableMsg)
}
