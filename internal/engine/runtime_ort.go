//go:build onnxruntime

package engine

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"predictd/pkg/types"
)

// The ONNX Runtime environment is process-wide; sessions are not. Separate
// predictors may run concurrently, a single predictor may not.
var ortEnv struct {
	once sync.Once
	err  error
}

// NewRuntime initializes the ONNX Runtime environment once and returns the
// engine backed by it.
func NewRuntime(opts Options) (Engine, error) {
	ortEnv.once.Do(func() {
		if opts.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(opts.SharedLibraryPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	if ortEnv.err != nil {
		return nil, ErrDependencyUnavailable("onnxruntime init: " + ortEnv.err.Error())
	}
	return &ortEngine{}, nil
}

type ortEngine struct{}

func (*ortEngine) Name() string { return "onnxruntime" }

func (*ortEngine) Ready() bool { return ort.IsInitialized() }

func (*ortEngine) Create(cfg Config, model, params []byte) (Predictor, error) {
	if len(cfg.Places) == 0 {
		return nil, fmt.Errorf("%w: no execution target configured", ErrUnsupported)
	}
	target := cfg.Places[0]
	switch target.Backend {
	case BackendHost, BackendX86, BackendARM:
	default:
		return nil, fmt.Errorf("%w: onnxruntime binding has no %s backend", ErrUnsupported, target.Backend)
	}
	if target.Precision != PrecisionFP32 {
		return nil, fmt.Errorf("%w: onnxruntime binding runs %s models only", ErrUnsupported, PrecisionFP32)
	}
	if len(model) == 0 {
		return nil, fmt.Errorf("%w: empty model buffer", ErrInvalidModel)
	}
	if len(params) > 0 {
		return nil, fmt.Errorf("%w: onnx models keep weights inline, params buffer must be empty", ErrInvalidModel)
	}
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	inNames := make([]string, len(inputs))
	for i, in := range inputs {
		inNames[i] = in.Name
	}
	outNames := make([]string, len(outputs))
	for i, out := range outputs {
		outNames[i] = out.Name
	}
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer so.Destroy()
	session, err := ort.NewDynamicAdvancedSessionWithONNXData(model, inNames, outNames, so)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return &ortPredictor{
		session:  session,
		inNames:  inNames,
		outNames: outNames,
		bound:    make(map[string]ort.Value, len(inNames)),
		results:  make(map[string]ort.Value, len(outNames)),
	}, nil
}

type ortPredictor struct {
	session  *ort.DynamicAdvancedSession
	inNames  []string
	outNames []string
	bound    map[string]ort.Value
	results  map[string]ort.Value
}

func (p *ortPredictor) BindInput(name string, t types.Tensor, lod [][]uint64) error {
	if !contains(p.inNames, name) {
		return fmt.Errorf("%w: %q", ErrUnknownInput, name)
	}
	if lod != nil {
		return fmt.Errorf("%w: onnxruntime has no sequence-length metadata (input %q)", ErrUnsupported, name)
	}
	v, err := toOrtValue(t)
	if err != nil {
		return fmt.Errorf("input %q: %w", name, err)
	}
	if old, ok := p.bound[name]; ok {
		_ = old.Destroy()
	}
	p.bound[name] = v
	return nil
}

func (p *ortPredictor) Run() error {
	ins := make([]ort.Value, len(p.inNames))
	for i, name := range p.inNames {
		v, ok := p.bound[name]
		if !ok {
			return fmt.Errorf("input %q not bound", name)
		}
		ins[i] = v
	}
	// nil outputs are allocated by the runtime.
	outs := make([]ort.Value, len(p.outNames))
	if err := p.session.Run(ins, outs); err != nil {
		return err
	}
	for i, name := range p.outNames {
		p.results[name] = outs[i]
	}
	return nil
}

func (p *ortPredictor) OutputNames() []string {
	return append([]string(nil), p.outNames...)
}

func (p *ortPredictor) Output(name string) (types.Tensor, error) {
	v, ok := p.results[name]
	if !ok || v == nil {
		return types.Tensor{}, fmt.Errorf("output %q not available", name)
	}
	shape := append([]int64(nil), v.GetShape()...)
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		return types.NewFP32(shape, append([]float32(nil), tv.GetData()...)), nil
	case *ort.Tensor[int32]:
		return types.NewINT32(shape, append([]int32(nil), tv.GetData()...)), nil
	case *ort.Tensor[int64]:
		return types.NewINT64(shape, append([]int64(nil), tv.GetData()...)), nil
	default:
		return types.Tensor{}, fmt.Errorf("%w: output %q has element type %T", ErrUnsupported, name, v)
	}
}

func (p *ortPredictor) Close() error {
	for name, v := range p.bound {
		_ = v.Destroy()
		delete(p.bound, name)
	}
	for name, v := range p.results {
		if v != nil {
			_ = v.Destroy()
		}
		delete(p.results, name)
	}
	if p.session == nil {
		return nil
	}
	err := p.session.Destroy()
	p.session = nil
	return err
}

func toOrtValue(t types.Tensor) (ort.Value, error) {
	shape := ort.NewShape(t.Shape...)
	switch t.DType {
	case types.DTypeFP32:
		return ort.NewTensor(shape, []float32(t.FP32))
	case types.DTypeFP16:
		data, err := t.Float32s()
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(shape, data)
	case types.DTypeINT32:
		return ort.NewTensor(shape, t.INT32)
	case types.DTypeINT64:
		return ort.NewTensor(shape, t.INT64)
	}
	return nil, fmt.Errorf("%w: dtype %q", ErrUnsupported, t.DType)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
