// Package enginetest provides an in-memory engine.Engine for tests.
//
// Its "models" are small JSON programs of elementwise ops over named inputs;
// its params buffer is a JSON object of named float constants. That is
// enough to tell two models apart, to detect malformed buffers and to
// observe what the service binds, without any native runtime.
package enginetest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"predictd/internal/engine"
	"predictd/pkg/types"
)

// Op computes one named output.
type Op struct {
	Name string `json:"name"`
	// One of identity, add, mul, scale, lod_levels.
	Op   string   `json:"op"`
	Args []string `json:"args"`
	// Params key used by scale.
	Param string `json:"param,omitempty"`
}

// Program is the decoded form of a model buffer.
type Program struct {
	Inputs  []string `json:"inputs"`
	Outputs []Op     `json:"outputs"`
}

// Model encodes a program as model bytes.
func Model(inputs []string, ops ...Op) []byte {
	b, err := json.Marshal(Program{Inputs: inputs, Outputs: ops})
	if err != nil {
		panic(err)
	}
	return b
}

// Params encodes named constants as a params buffer.
func Params(values map[string]float32) []byte {
	b, err := json.Marshal(values)
	if err != nil {
		panic(err)
	}
	return b
}

var arity = map[string]int{
	"identity":   1,
	"add":        2,
	"mul":        2,
	"scale":      1,
	"lod_levels": 1,
}

func parseProgram(model []byte) (Program, error) {
	var p Program
	if err := json.Unmarshal(model, &p); err != nil {
		return Program{}, fmt.Errorf("%w: %v", engine.ErrInvalidModel, err)
	}
	if len(p.Outputs) == 0 {
		return Program{}, fmt.Errorf("%w: program has no outputs", engine.ErrInvalidModel)
	}
	declared := make(map[string]bool, len(p.Inputs))
	for _, in := range p.Inputs {
		declared[in] = true
	}
	seen := make(map[string]bool, len(p.Outputs))
	for _, op := range p.Outputs {
		n, ok := arity[op.Op]
		if !ok {
			return Program{}, fmt.Errorf("%w: unknown op %q", engine.ErrInvalidModel, op.Op)
		}
		if op.Name == "" || seen[op.Name] {
			return Program{}, fmt.Errorf("%w: missing or duplicate output name %q", engine.ErrInvalidModel, op.Name)
		}
		seen[op.Name] = true
		if len(op.Args) != n {
			return Program{}, fmt.Errorf("%w: op %s wants %d args, got %d", engine.ErrInvalidModel, op.Op, n, len(op.Args))
		}
		for _, a := range op.Args {
			if !declared[a] {
				return Program{}, fmt.Errorf("%w: op %s reads undeclared input %q", engine.ErrInvalidModel, op.Op, a)
			}
		}
	}
	return p, nil
}

func parseParams(params []byte) (map[string]float32, error) {
	out := map[string]float32{}
	if len(params) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(params, &out); err != nil {
		return nil, fmt.Errorf("%w: params: %v", engine.ErrInvalidModel, err)
	}
	return out, nil
}

// Engine is a scriptable engine.Engine. The zero value is not usable; call New.
type Engine struct {
	// CreateErr, when set, is returned by every Create.
	CreateErr error
	// RunErr, when set, is returned by every Run.
	RunErr error
	// RunDelay makes Run block for a while so calls overlap.
	RunDelay time.Duration

	mu         sync.Mutex
	configs    []engine.Config
	predictors []*Predictor
	created    atomic.Int64
	closed     atomic.Int64
}

func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return "enginetest" }

func (e *Engine) Ready() bool { return true }

func (e *Engine) Create(cfg engine.Config, model, params []byte) (engine.Predictor, error) {
	e.mu.Lock()
	e.configs = append(e.configs, cfg)
	e.mu.Unlock()
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	prog, err := parseProgram(model)
	if err != nil {
		return nil, err
	}
	consts, err := parseParams(params)
	if err != nil {
		return nil, err
	}
	p := &Predictor{
		eng:     e,
		prog:    prog,
		params:  consts,
		inputs:  make(map[string]types.Tensor),
		lods:    make(map[string][][]uint64),
		results: make(map[string]types.Tensor),
	}
	e.mu.Lock()
	e.predictors = append(e.predictors, p)
	e.mu.Unlock()
	e.created.Add(1)
	return p, nil
}

// Configs returns every config passed to Create, in call order.
func (e *Engine) Configs() []engine.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Config(nil), e.configs...)
}

// Predictors returns every predictor created so far.
func (e *Engine) Predictors() []*Predictor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Predictor(nil), e.predictors...)
}

// Created returns the number of successful Create calls.
func (e *Engine) Created() int64 { return e.created.Load() }

// Live returns created minus closed predictors.
func (e *Engine) Live() int64 { return e.created.Load() - e.closed.Load() }

// Predictor is the enginetest engine.Predictor.
type Predictor struct {
	eng     *Engine
	prog    Program
	params  map[string]float32
	inputs  map[string]types.Tensor
	lods    map[string][][]uint64
	results map[string]types.Tensor
	runs    int
	closed  atomic.Bool
}

func (p *Predictor) BindInput(name string, t types.Tensor, lod [][]uint64) error {
	if p.closed.Load() {
		return fmt.Errorf("predictor closed")
	}
	known := false
	for _, in := range p.prog.Inputs {
		if in == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %q", engine.ErrUnknownInput, name)
	}
	p.inputs[name] = t
	if lod != nil {
		p.lods[name] = lod
	}
	return nil
}

func (p *Predictor) Run() error {
	if p.closed.Load() {
		return fmt.Errorf("predictor closed")
	}
	if p.eng.RunErr != nil {
		return p.eng.RunErr
	}
	if p.eng.RunDelay > 0 {
		time.Sleep(p.eng.RunDelay)
	}
	p.runs++
	for _, op := range p.prog.Outputs {
		out, err := p.eval(op)
		if err != nil {
			return fmt.Errorf("output %q: %w", op.Name, err)
		}
		p.results[op.Name] = out
	}
	return nil
}

func (p *Predictor) arg(name string) (types.Tensor, error) {
	t, ok := p.inputs[name]
	if !ok {
		return types.Tensor{}, fmt.Errorf("input %q not bound", name)
	}
	return t, nil
}

func (p *Predictor) floats(name string) (types.Tensor, []float32, error) {
	t, err := p.arg(name)
	if err != nil {
		return types.Tensor{}, nil, err
	}
	data, err := t.Float32s()
	if err != nil {
		return types.Tensor{}, nil, err
	}
	return t, data, nil
}

func (p *Predictor) eval(op Op) (types.Tensor, error) {
	switch op.Op {
	case "identity":
		return p.arg(op.Args[0])
	case "lod_levels":
		if _, err := p.arg(op.Args[0]); err != nil {
			return types.Tensor{}, err
		}
		levels := int64(-1)
		if lod, ok := p.lods[op.Args[0]]; ok {
			levels = int64(len(lod))
		}
		return types.NewINT64(nil, []int64{levels}), nil
	case "scale":
		a, data, err := p.floats(op.Args[0])
		if err != nil {
			return types.Tensor{}, err
		}
		k, ok := p.params[op.Param]
		if !ok {
			return types.Tensor{}, fmt.Errorf("param %q missing", op.Param)
		}
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = v * k
		}
		return types.NewFP32(a.Shape, out), nil
	case "add", "mul":
		a, x, err := p.floats(op.Args[0])
		if err != nil {
			return types.Tensor{}, err
		}
		_, y, err := p.floats(op.Args[1])
		if err != nil {
			return types.Tensor{}, err
		}
		if len(x) != len(y) {
			return types.Tensor{}, fmt.Errorf("length mismatch %d vs %d", len(x), len(y))
		}
		out := make([]float32, len(x))
		for i := range x {
			if op.Op == "add" {
				out[i] = x[i] + y[i]
			} else {
				out[i] = x[i] * y[i]
			}
		}
		return types.NewFP32(a.Shape, out), nil
	}
	return types.Tensor{}, fmt.Errorf("unknown op %q", op.Op)
}

func (p *Predictor) OutputNames() []string {
	names := make([]string, len(p.prog.Outputs))
	for i, op := range p.prog.Outputs {
		names[i] = op.Name
	}
	return names
}

func (p *Predictor) Output(name string) (types.Tensor, error) {
	t, ok := p.results[name]
	if !ok {
		return types.Tensor{}, fmt.Errorf("output %q not available", name)
	}
	return t, nil
}

func (p *Predictor) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.eng.closed.Add(1)
	}
	return nil
}

// LoD returns the sequence metadata attached to an input, if any.
func (p *Predictor) LoD(name string) ([][]uint64, bool) {
	lod, ok := p.lods[name]
	return lod, ok
}

// Runs returns how many times Run executed.
func (p *Predictor) Runs() int { return p.runs }

// Closed reports whether Close was called.
func (p *Predictor) Closed() bool { return p.closed.Load() }
