package types

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Floats holds FP32 contents. In JSON, finite elements are plain numbers and
// non-finite ones are spelled "NaN", "Infinity" and "-Infinity" (the
// protobuf JSON mapping), so IEEE specials cross the wire unchanged.
type Floats []float32

func (f Floats) finite() bool {
	for _, v := range f {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

func (f Floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	if f.finite() {
		return json.Marshal([]float32(f))
	}
	buf := make([]byte, 0, 2+8*len(f))
	buf = append(buf, '[')
	for i, v := range f {
		if i > 0 {
			buf = append(buf, ',')
		}
		x := float64(v)
		switch {
		case math.IsNaN(x):
			buf = append(buf, `"NaN"`...)
		case math.IsInf(x, 1):
			buf = append(buf, `"Infinity"`...)
		case math.IsInf(x, -1):
			buf = append(buf, `"-Infinity"`...)
		default:
			buf = strconv.AppendFloat(buf, x, 'g', -1, 32)
		}
	}
	return append(buf, ']'), nil
}

func (f *Floats) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*f = nil
		return nil
	}
	var plain []float32
	if err := json.Unmarshal(b, &plain); err == nil {
		*f = plain
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return fmt.Errorf("%w: fp32 contents: %v", ErrInvalidTensor, err)
	}
	out := make(Floats, len(elems))
	for i, e := range elems {
		v, err := parseFloat(e)
		if err != nil {
			return fmt.Errorf("%w: fp32 contents[%d]: %v", ErrInvalidTensor, i, err)
		}
		out[i] = v
	}
	*f = out
	return nil
}

func parseFloat(e []byte) (float32, error) {
	e = bytes.TrimSpace(e)
	if len(e) > 0 && e[0] == '"' {
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			return 0, err
		}
		switch s {
		case "NaN":
			return float32(math.NaN()), nil
		case "Infinity", "+Infinity", "Inf", "+Inf":
			return float32(math.Inf(1)), nil
		case "-Infinity", "-Inf":
			return float32(math.Inf(-1)), nil
		}
		return 0, fmt.Errorf("%q is not a float", s)
	}
	v, err := strconv.ParseFloat(string(e), 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}
