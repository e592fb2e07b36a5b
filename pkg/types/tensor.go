package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType names the element type carried by a Tensor.
type DType string

const (
	DTypeFP32  DType = "FP32"
	DTypeFP16  DType = "FP16"
	DTypeINT32 DType = "INT32"
	DTypeINT64 DType = "INT64"
)

// ErrInvalidTensor is wrapped by every tensor validation failure.
var ErrInvalidTensor = errors.New("invalid tensor")

// Tensor is a dense numeric array. Exactly one contents field is populated,
// chosen by DType. FP16 data travels as little-endian bits in Raw.
type Tensor struct {
	// Element type.
	DType DType `json:"dtype"`
	// Dimensions; an empty shape is a scalar.
	Shape []int64 `json:"shape"`
	// FP32 contents in row-major order.
	FP32 Floats `json:"fp32_contents,omitempty"`
	// INT32 contents in row-major order.
	INT32 []int32 `json:"int_contents,omitempty"`
	// INT64 contents in row-major order.
	INT64 []int64 `json:"int64_contents,omitempty"`
	// Raw little-endian contents (FP16).
	Raw []byte `json:"raw_contents,omitempty"`
}

// InputTensor is a Tensor bound to a named input slot. LoD carries the
// nested sequence lengths of variable-length inputs. A nil LoD means the
// slot gets no sequence metadata at all; an empty, non-nil LoD is still
// attached.
type InputTensor struct {
	Tensor
	LoD [][]uint64 `json:"lod"`
}

func NewFP32(shape []int64, data []float32) Tensor {
	return Tensor{DType: DTypeFP32, Shape: shape, FP32: data}
}

func NewINT32(shape []int64, data []int32) Tensor {
	return Tensor{DType: DTypeINT32, Shape: shape, INT32: data}
}

func NewINT64(shape []int64, data []int64) Tensor {
	return Tensor{DType: DTypeINT64, Shape: shape, INT64: data}
}

// NewFP16 rounds data to half precision and packs it into Raw.
func NewFP16(shape []int64, data []float32) Tensor {
	raw := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(raw[i*2:], float16.Fromfloat32(v).Bits())
	}
	return Tensor{DType: DTypeFP16, Shape: shape, Raw: raw}
}

// NumElements returns the product of the shape.
func (t Tensor) NumElements() (int, error) {
	n := 1
	for _, d := range t.Shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in shape %v", ErrInvalidTensor, t.Shape)
		}
		if d > math.MaxInt || (d != 0 && n > math.MaxInt/int(d)) {
			return 0, fmt.Errorf("%w: shape %v overflows the element count", ErrInvalidTensor, t.Shape)
		}
		n *= int(d)
	}
	return n, nil
}

// Len returns the number of elements actually carried.
func (t Tensor) Len() int {
	switch t.DType {
	case DTypeFP32:
		return len(t.FP32)
	case DTypeINT32:
		return len(t.INT32)
	case DTypeINT64:
		return len(t.INT64)
	case DTypeFP16:
		return len(t.Raw) / 2
	}
	return 0
}

// Validate checks that the dtype is known, that only the matching contents
// field is set and that its length agrees with the shape.
func (t Tensor) Validate() error {
	want, err := t.NumElements()
	if err != nil {
		return err
	}
	populated := 0
	for _, n := range []int{len(t.FP32), len(t.INT32), len(t.INT64), len(t.Raw)} {
		if n > 0 {
			populated++
		}
	}
	if populated > 1 {
		return fmt.Errorf("%w: more than one contents field set for %s", ErrInvalidTensor, t.DType)
	}
	switch t.DType {
	case DTypeFP32:
		if len(t.INT32)+len(t.INT64)+len(t.Raw) > 0 {
			return fmt.Errorf("%w: FP32 tensor carries non-FP32 contents", ErrInvalidTensor)
		}
	case DTypeINT32:
		if len(t.FP32)+len(t.INT64)+len(t.Raw) > 0 {
			return fmt.Errorf("%w: INT32 tensor carries non-INT32 contents", ErrInvalidTensor)
		}
	case DTypeINT64:
		if len(t.FP32)+len(t.INT32)+len(t.Raw) > 0 {
			return fmt.Errorf("%w: INT64 tensor carries non-INT64 contents", ErrInvalidTensor)
		}
	case DTypeFP16:
		if len(t.FP32)+len(t.INT32)+len(t.INT64) > 0 {
			return fmt.Errorf("%w: FP16 tensor must use raw contents", ErrInvalidTensor)
		}
		if len(t.Raw)%2 != 0 {
			return fmt.Errorf("%w: FP16 raw contents has odd length %d", ErrInvalidTensor, len(t.Raw))
		}
	default:
		return fmt.Errorf("%w: unsupported dtype %q", ErrInvalidTensor, t.DType)
	}
	if got := t.Len(); got != want {
		return fmt.Errorf("%w: shape %v wants %d elements, got %d", ErrInvalidTensor, t.Shape, want, got)
	}
	return nil
}

// Float32s returns FP32 contents directly and widens FP16 contents.
func (t Tensor) Float32s() ([]float32, error) {
	switch t.DType {
	case DTypeFP32:
		return t.FP32, nil
	case DTypeFP16:
		out := make([]float32, len(t.Raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(t.Raw[i*2:])).Float32()
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s is not a floating point dtype", ErrInvalidTensor, t.DType)
}

// Widen converts an FP16 tensor to FP32 and returns other tensors unchanged.
func (t Tensor) Widen() (Tensor, error) {
	if t.DType != DTypeFP16 {
		return t, nil
	}
	data, err := t.Float32s()
	if err != nil {
		return Tensor{}, err
	}
	return NewFP32(t.Shape, data), nil
}
