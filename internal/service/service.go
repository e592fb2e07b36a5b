// Package service implements RunModel: configure, create a predictor, bind
// the inputs, run once and read every output back.
//
// Nothing outlives a call. Each call builds its own engine.Config and its own
// predictor and closes the predictor before returning, so concurrent calls
// share nothing but the engine handle. The service adds no locking around
// the engine; whether two predictors may run at once is the binding's
// concern (see package engine).
package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"predictd/internal/engine"
	"predictd/pkg/types"
)

// Config holds everything a Service needs.
type Config struct {
	Engine engine.Engine
	// Target is the single execution target every predictor is created for.
	// Zero value means engine.DefaultTarget.
	Target engine.Target
	Logger *zerolog.Logger
}

type Service struct {
	engine engine.Engine
	target engine.Target
	log    zerolog.Logger
}

// New constructs a Service from cfg.
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, errors.New("service: nil engine")
	}
	s := &Service{engine: cfg.Engine, target: cfg.Target, log: zerolog.Nop()}
	if s.target == (engine.Target{}) {
		s.target = engine.DefaultTarget
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "service").Logger()
	}
	return s, nil
}

// Ready reports whether the engine can create predictors in this build.
func (s *Service) Ready() bool { return s.engine.Ready() }

// Target describes the engine and execution target for /target.
func (s *Service) Target() types.TargetResponse {
	return types.TargetResponse{
		Engine:    s.engine.Name(),
		Backend:   string(s.target.Backend),
		Precision: string(s.target.Precision),
	}
}

// RunModel executes one inference pass of req.Model over req.Inputs.
// Any failure ends the call; no outputs are returned alongside an error.
func (s *Service) RunModel(ctx context.Context, req types.RunModelRequest) (types.RunModelResponse, error) {
	if err := ctx.Err(); err != nil {
		return types.RunModelResponse{}, err
	}
	start := time.Now()
	cfg := engine.Config{Places: []engine.Target{s.target}}
	pred, err := s.engine.Create(cfg, req.Model, req.Params)
	if err != nil {
		return types.RunModelResponse{}, err
	}
	defer func() {
		if cerr := pred.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("predictor close")
		}
	}()

	names := make([]string, 0, len(req.Inputs))
	for name := range req.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		in := req.Inputs[name]
		if err := in.Validate(); err != nil {
			return types.RunModelResponse{}, invalidInputError{name: name, err: err}
		}
		t, err := in.Tensor.Widen()
		if err != nil {
			return types.RunModelResponse{}, invalidInputError{name: name, err: err}
		}
		if err := pred.BindInput(name, t, in.LoD); err != nil {
			return types.RunModelResponse{}, err
		}
	}

	if err := pred.Run(); err != nil {
		return types.RunModelResponse{}, err
	}

	outputs := make(map[string]types.Tensor)
	for _, name := range pred.OutputNames() {
		t, err := pred.Output(name)
		if err != nil {
			return types.RunModelResponse{}, err
		}
		outputs[name] = t
	}
	s.log.Debug().
		Int("inputs", len(names)).
		Int("outputs", len(outputs)).
		Dur("dur", time.Since(start)).
		Msg("run_model done")
	return types.RunModelResponse{Outputs: outputs}, nil
}
