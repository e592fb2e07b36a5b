package e2e

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"predictd/internal/engine/enginetest"
	"predictd/pkg/types"
)

var (
	addModel = enginetest.Model([]string{"a", "b"}, enginetest.Op{Name: "sum", Op: "add", Args: []string{"a", "b"}})
	mulModel = enginetest.Model([]string{"a", "b"}, enginetest.Op{Name: "prod", Op: "mul", Args: []string{"a", "b"}})
	lodModel = enginetest.Model([]string{"x"}, enginetest.Op{Name: "levels", Op: "lod_levels", Args: []string{"x"}})
)

func pair(a, b float32) map[string]types.InputTensor {
	return map[string]types.InputTensor{
		"a": {Tensor: types.NewFP32([]int64{1}, []float32{a})},
		"b": {Tensor: types.NewFP32([]int64{1}, []float32{b})},
	}
}

func TestE2E_RunModelAndOpsEndpoints(t *testing.T) {
	s := startStack(t, enginetest.New())

	out, err := s.client.RunModel(testCtx(t), addModel, nil, pair(2, 3))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out) != 1 || out["sum"].FP32[0] != 5 {
		t.Fatalf("outputs=%+v", out)
	}

	if code, body := s.get(t, "/healthz"); code != http.StatusOK || body != "ok" {
		t.Fatalf("/healthz %d %q", code, body)
	}
	if code, _ := s.get(t, "/readyz"); code != http.StatusOK {
		t.Fatalf("/readyz %d", code)
	}
	code, body := s.get(t, "/target")
	if code != http.StatusOK {
		t.Fatalf("/target %d", code)
	}
	var target types.TargetResponse
	if err := json.Unmarshal([]byte(body), &target); err != nil {
		t.Fatalf("decode target: %v", err)
	}
	if target.Engine != "enginetest" || target.Backend != "arm" || target.Precision != "fp32" {
		t.Fatalf("target=%+v", target)
	}
	code, body = s.get(t, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics %d", code)
	}
	for _, name := range []string{"predictd_rpc_requests_total", "predictd_engine_predictors_live", "predictd_http_requests_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics missing %s", name)
		}
	}
}

func TestE2E_RepeatedCallsDoNotLeakPredictors(t *testing.T) {
	inner := enginetest.New()
	s := startStack(t, inner)
	const calls = 30
	for i := 0; i < calls; i++ {
		if _, err := s.client.RunModel(testCtx(t), mulModel, nil, pair(float32(i), 2)); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if i%3 == 0 {
			if _, err := s.client.RunModel(testCtx(t), []byte("garbage"), nil, nil); err == nil {
				t.Fatalf("call %d: malformed model accepted", i)
			}
		}
	}
	if inner.Created() != calls {
		t.Fatalf("created=%d want %d", inner.Created(), calls)
	}
	if inner.Live() != 0 || s.engine.Live() != 0 {
		t.Fatalf("leaked predictors: engine=%d instrumented=%d", inner.Live(), s.engine.Live())
	}
	for i, p := range inner.Predictors() {
		if !p.Closed() || p.Runs() != 1 {
			t.Fatalf("predictor %d closed=%v runs=%d", i, p.Closed(), p.Runs())
		}
	}
}

func TestE2E_ConcurrentModelsDoNotMix(t *testing.T) {
	s := startStack(t, enginetest.New())
	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := float32(i), float32(i+1)
			model, name, want := addModel, "sum", a+b
			if i%2 == 1 {
				model, name, want = mulModel, "prod", a*b
			}
			out, err := s.client.RunModel(testCtx(t), model, nil, pair(a, b))
			if err != nil {
				errs <- err
				return
			}
			got, ok := out[name]
			if len(out) != 1 || !ok || got.FP32[0] != want {
				errs <- fmt.Errorf("worker %d: outputs=%+v want %s=%v", i, out, name, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if s.engine.Live() != 0 {
		t.Fatalf("live=%d", s.engine.Live())
	}
}

func TestE2E_LoDCrossesTheWire(t *testing.T) {
	s := startStack(t, enginetest.New())
	x := types.NewFP32([]int64{3}, []float32{1, 2, 3})
	cases := []struct {
		name string
		lod  [][]uint64
		want int64
	}{
		{"absent", nil, -1},
		{"empty", [][]uint64{}, 0},
		{"two levels", [][]uint64{{0, 1}, {0, 2, 3}}, 2},
	}
	for _, c := range cases {
		out, err := s.client.RunModel(testCtx(t), lodModel, nil, map[string]types.InputTensor{"x": {Tensor: x, LoD: c.lod}})
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got := out["levels"].INT64; len(got) != 1 || got[0] != c.want {
			t.Fatalf("%s: levels=%v want %d", c.name, got, c.want)
		}
	}
}

func TestE2E_ErrorsCarryStatusAndNoOutputs(t *testing.T) {
	s := startStack(t, enginetest.New())
	cases := []struct {
		name   string
		model  []byte
		inputs map[string]types.InputTensor
		code   codes.Code
	}{
		{"malformed model", []byte("{"), nil, codes.InvalidArgument},
		{"unknown input", addModel, map[string]types.InputTensor{"zzz": {Tensor: types.NewFP32([]int64{1}, []float32{1})}}, codes.InvalidArgument},
		{"bad tensor", addModel, map[string]types.InputTensor{"a": {Tensor: types.NewFP32([]int64{4}, []float32{1})}}, codes.InvalidArgument},
	}
	for _, c := range cases {
		out, err := s.client.RunModel(testCtx(t), c.model, nil, c.inputs)
		if status.Code(err) != c.code {
			t.Fatalf("%s: code=%v err=%v", c.name, status.Code(err), err)
		}
		if out != nil {
			t.Fatalf("%s: partial outputs %+v", c.name, out)
		}
	}
	if s.engine.Live() != 0 {
		t.Fatalf("live=%d", s.engine.Live())
	}
}
