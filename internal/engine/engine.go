// Package engine is the boundary to the external inference runtime.
//
// The service never looks inside a model. It builds a Config for the single
// execution target chosen at startup, asks an Engine for a fresh Predictor,
// binds named inputs, runs one pass and reads every output back. A Predictor
// is owned by exactly one call and must be closed by it.
//
// Bindings:
//
//   - onnxruntime (build tag `onnxruntime`): yalue/onnxruntime_go over the
//     ONNX Runtime shared library. Sessions are created from in-memory model
//     bytes; separate sessions may run concurrently.
//   - stub (default build): refuses every Create with a dependency-unavailable
//     error so binaries without the native runtime fail loudly.
//
// enginetest provides an in-memory engine for tests.
package engine

import (
	"fmt"
	"strings"

	"predictd/pkg/types"
)

// Backend names the hardware an engine places kernels on.
type Backend string

const (
	BackendHost Backend = "host"
	BackendX86  Backend = "x86"
	BackendARM  Backend = "arm"
	BackendCUDA Backend = "cuda"
)

// Precision names the numeric precision kernels are picked for.
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionFP16 Precision = "fp16"
	PrecisionINT8 Precision = "int8"
)

// Target is one execution target: a backend plus a precision.
type Target struct {
	Backend   Backend
	Precision Precision
}

func (t Target) String() string { return string(t.Backend) + "/" + string(t.Precision) }

// DefaultTarget matches the ARM FP32 place the fixture has always used.
var DefaultTarget = Target{Backend: BackendARM, Precision: PrecisionFP32}

// ParseTarget normalizes and validates backend and precision names.
func ParseTarget(backend, precision string) (Target, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(backend)))
	p := Precision(strings.ToLower(strings.TrimSpace(precision)))
	if b == "" {
		b = DefaultTarget.Backend
	}
	if p == "" {
		p = DefaultTarget.Precision
	}
	switch b {
	case BackendHost, BackendX86, BackendARM, BackendCUDA:
	default:
		return Target{}, fmt.Errorf("unsupported backend %q", backend)
	}
	switch p {
	case PrecisionFP32, PrecisionFP16, PrecisionINT8:
	default:
		return Target{}, fmt.Errorf("unsupported precision %q", precision)
	}
	return Target{Backend: b, Precision: p}, nil
}

// Config is built fresh for every call.
type Config struct {
	// Places lists the valid execution targets, preferred first.
	Places []Target
}

// Engine creates predictors from serialized models.
type Engine interface {
	// Name identifies the binding (e.g. "onnxruntime").
	Name() string
	// Ready reports whether Create can succeed at all in this build.
	Ready() bool
	// Create loads model and params for cfg. Malformed buffers yield an
	// error wrapping ErrInvalidModel.
	Create(cfg Config, model, params []byte) (Predictor, error)
}

// Predictor is a one-shot inference instance. It is not safe for
// concurrent use; each call owns its own.
type Predictor interface {
	// BindInput copies t into the named input slot. A nil lod leaves the
	// slot without sequence-length metadata; a non-nil lod is attached.
	BindInput(name string, t types.Tensor, lod [][]uint64) error
	// Run executes one synchronous inference pass.
	Run() error
	// OutputNames lists every output the model produces.
	OutputNames() []string
	// Output reads one output back after Run.
	Output(name string) (types.Tensor, error)
	// Close releases the instance. It is safe to call more than once.
	Close() error
}
