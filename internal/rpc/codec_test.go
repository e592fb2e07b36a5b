package rpc

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"predictd/internal/engine"
	"predictd/pkg/types"
)

func TestCodec_StrictDecodingRejectsUnknownFields(t *testing.T) {
	payload := []byte(`{"model":"","params":"","inputs":{},"allow_pickle":true}`)
	var req types.RunModelRequest
	if err := NewCodec(DefaultPolicy()).Unmarshal(payload, &req); err == nil {
		t.Fatalf("expected strict codec to reject unknown field")
	}
	lax := NewCodec(Policy{DisallowUnknownFields: false})
	if err := lax.Unmarshal(payload, &req); err != nil {
		t.Fatalf("lax codec: %v", err)
	}
}

func TestCodec_PreservesLoDPresence(t *testing.T) {
	c := NewCodec(DefaultPolicy())
	in := types.RunModelRequest{
		Model: []byte{0, 1, 2},
		Inputs: map[string]types.InputTensor{
			"absent":  {Tensor: types.NewFP32([]int64{1}, []float32{1})},
			"empty":   {Tensor: types.NewFP32([]int64{1}, []float32{1}), LoD: [][]uint64{}},
			"present": {Tensor: types.NewFP32([]int64{1}, []float32{1}), LoD: [][]uint64{{0, 1}}},
		},
	}
	b, err := c.Marshal(&in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out types.RunModelRequest
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Inputs["absent"].LoD != nil {
		t.Fatalf("absent lod decoded as %v", out.Inputs["absent"].LoD)
	}
	if lod := out.Inputs["empty"].LoD; lod == nil || len(lod) != 0 {
		t.Fatalf("empty lod decoded as %#v", lod)
	}
	if lod := out.Inputs["present"].LoD; len(lod) != 1 || lod[0][1] != 1 {
		t.Fatalf("present lod decoded as %v", lod)
	}
	if string(out.Model) != string(in.Model) {
		t.Fatalf("model bytes changed")
	}
}

func TestCodec_Name(t *testing.T) {
	if NewCodec(DefaultPolicy()).Name() != CodecName {
		t.Fatalf("name mismatch")
	}
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{errors.New("boom"), codes.Internal},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{engine.ErrInvalidModel, codes.InvalidArgument},
		{types.ErrInvalidTensor, codes.InvalidArgument},
		{engine.ErrUnknownInput, codes.InvalidArgument},
		{engine.ErrUnsupported, codes.Unimplemented},
		{engine.ErrDependencyUnavailable("no runtime"), codes.Unavailable},
		{status.Error(codes.NotFound, "kept"), codes.NotFound},
	}
	for _, c := range cases {
		st := status.Convert(toStatus(c.err))
		if st.Code() != c.want {
			t.Fatalf("%v -> %s want %s", c.err, st.Code(), c.want)
		}
		if !strings.Contains(c.err.Error(), st.Message()) {
			t.Fatalf("message changed: %q vs %q", st.Message(), c.err.Error())
		}
	}
	if toStatus(nil) != nil {
		t.Fatalf("nil error mapped to non-nil")
	}
}

func TestCodec_NonFiniteFloatsRoundTrip(t *testing.T) {
	c := NewCodec(DefaultPolicy())
	in := types.RunModelResponse{Outputs: map[string]types.Tensor{
		"y": types.NewFP32([]int64{3}, []float32{float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN())}),
	}}
	b, err := c.Marshal(&in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out types.RunModelResponse
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	y := out.Outputs["y"].FP32
	if len(y) != 3 || !math.IsInf(float64(y[0]), 1) || !math.IsInf(float64(y[1]), -1) || !math.IsNaN(float64(y[2])) {
		t.Fatalf("y=%v from %s", y, b)
	}
}
