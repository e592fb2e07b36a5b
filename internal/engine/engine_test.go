package engine

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"predictd/pkg/types"
)

func TestParseTarget(t *testing.T) {
	cases := []struct {
		backend, precision string
		want               Target
		wantErr            bool
	}{
		{"", "", DefaultTarget, false},
		{"ARM", "FP32", Target{BackendARM, PrecisionFP32}, false},
		{" x86 ", "int8", Target{BackendX86, PrecisionINT8}, false},
		{"cuda", "fp16", Target{BackendCUDA, PrecisionFP16}, false},
		{"tpu", "fp32", Target{}, true},
		{"arm", "bf16", Target{}, true},
	}
	for _, c := range cases {
		got, err := ParseTarget(c.backend, c.precision)
		if (err != nil) != c.wantErr {
			t.Fatalf("%q/%q err=%v wantErr=%v", c.backend, c.precision, err, c.wantErr)
		}
		if !c.wantErr && got != c.want {
			t.Fatalf("%q/%q -> %v want %v", c.backend, c.precision, got, c.want)
		}
	}
}

func TestTargetString(t *testing.T) {
	if s := DefaultTarget.String(); s != "arm/fp32" {
		t.Fatalf("string=%q", s)
	}
}

func TestDependencyUnavailable(t *testing.T) {
	err := ErrDependencyUnavailable("missing runtime")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable")
	}
	wrapped := errors.Join(errors.New("ctx"), err)
	if !IsDependencyUnavailable(wrapped) {
		t.Fatalf("expected wrapped dependency unavailable")
	}
	if IsDependencyUnavailable(errors.New("other")) {
		t.Fatalf("unexpected match")
	}
}

type countingEngine struct {
	createErr error
	closes    int
}

func (e *countingEngine) Name() string { return "counting" }
func (e *countingEngine) Ready() bool  { return true }
func (e *countingEngine) Create(Config, []byte, []byte) (Predictor, error) {
	if e.createErr != nil {
		return nil, e.createErr
	}
	return &countingPredictor{e: e}, nil
}

type countingPredictor struct{ e *countingEngine }

func (p *countingPredictor) BindInput(string, types.Tensor, [][]uint64) error { return nil }
func (p *countingPredictor) Run() error                                       { return nil }
func (p *countingPredictor) OutputNames() []string                            { return nil }
func (p *countingPredictor) Output(string) (types.Tensor, error)              { return types.Tensor{}, nil }
func (p *countingPredictor) Close() error                                     { p.e.closes++; return nil }

func TestInstrument_TracksLivePredictors(t *testing.T) {
	inner := &countingEngine{}
	eng := Instrument(inner)
	createdBefore := testutil.ToFloat64(predictorsCreated.WithLabelValues("counting"))

	p1, err := eng.Create(Config{}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p2, _ := eng.Create(Config{}, nil, nil)
	if eng.Live() != 2 {
		t.Fatalf("live=%d", eng.Live())
	}
	if g := testutil.ToFloat64(predictorsLive.WithLabelValues("counting")); g != 2 {
		t.Fatalf("gauge=%v", g)
	}
	_ = p1.Close()
	_ = p1.Close() // double close counts once
	_ = p2.Close()
	if eng.Live() != 0 {
		t.Fatalf("live=%d after close", eng.Live())
	}
	if g := testutil.ToFloat64(predictorsLive.WithLabelValues("counting")); g != 0 {
		t.Fatalf("gauge=%v after close", g)
	}
	if inner.closes != 3 {
		t.Fatalf("inner closes=%d", inner.closes)
	}
	if d := testutil.ToFloat64(predictorsCreated.WithLabelValues("counting")) - createdBefore; d != 2 {
		t.Fatalf("created delta=%v", d)
	}
}

func TestInstrument_CreateFailure(t *testing.T) {
	eng := Instrument(&countingEngine{createErr: ErrInvalidModel})
	before := testutil.ToFloat64(createFailures.WithLabelValues("counting"))
	if _, err := eng.Create(Config{}, nil, nil); !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("err=%v", err)
	}
	if eng.Live() != 0 {
		t.Fatalf("live=%d", eng.Live())
	}
	if d := testutil.ToFloat64(createFailures.WithLabelValues("counting")) - before; d != 1 {
		t.Fatalf("failures delta=%v", d)
	}
}
