// Package inference - Tensors, engine buffers and the model runner.
package inference

import (
	"fmt"
	"math/rand"
	"reflect"

	"github.com/pkg/errors"
)

// DType is the element type of a tensor.
type DType int

// Supported element types.
const (
	DTypeInvalid DType = iota
	DTypeFloat32
	DTypeFloat64
	DTypeUint8
	DTypeInt8
	DTypeUint16
	DTypeInt16
	DTypeInt32
	DTypeInt64
)

// Element is the set of Go types a tensor can hold.
type Element interface {
	~float32 | ~float64 | ~uint8 | ~int8 | ~uint16 | ~int16 | ~int32 | ~int64
}

// String implements fmt.Stringer.
func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "float32"
	case DTypeFloat64:
		return "float64"
	case DTypeUint8:
		return "uint8"
	case DTypeInt8:
		return "int8"
	case DTypeUint16:
		return "uint16"
	case DTypeInt16:
		return "int16"
	case DTypeInt32:
		return "int32"
	case DTypeInt64:
		return "int64"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Size returns the byte size of one element.
func (d DType) Size() int {
	switch d {
	case DTypeUint8, DTypeInt8:
		return 1
	case DTypeUint16, DTypeInt16:
		return 2
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeFloat64, DTypeInt64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool {
	return d == DTypeFloat32 || d == DTypeFloat64
}

// Shape is a tensor shape in elements per dimension.
type Shape []int64

// Elements returns the flattened element count.
func (s Shape) Elements() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Fixed reports whether every dimension is known and positive.
func (s Shape) Fixed() bool {
	for _, d := range s {
		if d <= 0 {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

// Role says whether a tensor is fed to or produced by the model.
type Role int

// Tensor roles.
const (
	RoleInput Role = iota
	RoleOutput
)

// String implements fmt.Stringer.
func (r Role) String() string {
	if r == RoleInput {
		return "input"
	}
	return "output"
}

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name  string
	Shape Shape
	DType DType
	Role  Role
}

// Bytes returns the size of the tensor in bytes.
func (i TensorInfo) Bytes() int64 {
	return i.Shape.Elements() * int64(i.DType.Size())
}

// Tensor is a named, shaped, typed slice. Data holds one of the Element slice types.
type Tensor struct {
	Name  string
	Shape Shape
	Data  any
}

// NewTensor builds a tensor over data without copying it.
func NewTensor[T Element](name string, shape Shape, data []T) Tensor {
	return Tensor{Name: name, Shape: shape, Data: data}
}

// DataAs returns the tensor data as []T if it holds that type.
func DataAs[T Element](t Tensor) ([]T, bool) {
	data, ok := t.Data.([]T)
	return data, ok
}

// Len returns the number of elements in Data.
func (t Tensor) Len() int {
	if t.Data == nil {
		return 0
	}
	v := reflect.ValueOf(t.Data)
	if v.Kind() != reflect.Slice {
		return 0
	}
	return v.Len()
}

// DType returns the element type of Data.
func (t Tensor) DType() DType {
	return dtypeOf(t.Data)
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	out := Tensor{Name: t.Name, Shape: t.Shape.Clone()}
	if t.Data == nil {
		return out
	}
	src := reflect.ValueOf(t.Data)
	dst := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
	reflect.Copy(dst, src)
	out.Data = dst.Interface()
	return out
}

// makeData allocates a zeroed slice of n elements of type d.
func makeData(d DType, n int) (any, error) {
	switch d {
	case DTypeFloat32:
		return make([]float32, n), nil
	case DTypeFloat64:
		return make([]float64, n), nil
	case DTypeUint8:
		return make([]uint8, n), nil
	case DTypeInt8:
		return make([]int8, n), nil
	case DTypeUint16:
		return make([]uint16, n), nil
	case DTypeInt16:
		return make([]int16, n), nil
	case DTypeInt32:
		return make([]int32, n), nil
	case DTypeInt64:
		return make([]int64, n), nil
	default:
		return nil, errors.Errorf("unsupported dtype %s", d)
	}
}

func dtypeOf(data any) DType {
	switch data.(type) {
	case []float32:
		return DTypeFloat32
	case []float64:
		return DTypeFloat64
	case []uint8:
		return DTypeUint8
	case []int8:
		return DTypeInt8
	case []uint16:
		return DTypeUint16
	case []int16:
		return DTypeInt16
	case []int32:
		return DTypeInt32
	case []int64:
		return DTypeInt64
	default:
		return DTypeInvalid
	}
}

// randomize fills data with uniform noise in [0, 1) for floats and the low byte range for
// integers, matching what an image-like input would see.
func randomize(data any, rng *rand.Rand) {
	switch d := data.(type) {
	case []float32:
		for i := range d {
			d[i] = rng.Float32()
		}
	case []float64:
		for i := range d {
			d[i] = rng.Float64()
		}
	case []uint8:
		for i := range d {
			d[i] = uint8(rng.Intn(256))
		}
	case []int8:
		for i := range d {
			d[i] = int8(rng.Intn(128))
		}
	case []uint16:
		for i := range d {
			d[i] = uint16(rng.Intn(256))
		}
	case []int16:
		for i := range d {
			d[i] = int16(rng.Intn(256))
		}
	case []int32:
		for i := range d {
			d[i] = int32(rng.Intn(256))
		}
	case []int64:
		for i := range d {
			d[i] = int64(rng.Intn(256))
		}
	}
}
