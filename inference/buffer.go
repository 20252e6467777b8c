package inference

import (
	"math/rand"
	"reflect"

	"github.com/pkg/errors"
)

// Buffer is a fixed host-side staging area for one model tensor. Backends allocate buffers once
// at open time and hand them to the Runner; their shape and type never change afterwards.
type Buffer struct {
	info TensorInfo
	data any
}

// NewBuffer wraps backend-owned host memory. data must be an Element slice whose type and length
// match info.
//
// Arguments:
//   - info: The tensor description.
//   - data: The host memory backing the tensor.
//
// Returns:
//   - *Buffer: The buffer.
//   - error: An error if data does not match info.
func NewBuffer(info TensorInfo, data any) (*Buffer, error) {
	if !info.Shape.Fixed() {
		return nil, errors.Errorf("tensor %q has a dynamic shape %v", info.Name, info.Shape)
	}
	if got := dtypeOf(data); got != info.DType {
		return nil, errors.Errorf("tensor %q backed by %s, declared %s", info.Name, got, info.DType)
	}
	if n := int64(reflect.ValueOf(data).Len()); n != info.Shape.Elements() {
		return nil, errors.Errorf("tensor %q backed by %d elements, shape %v needs %d",
			info.Name, n, info.Shape, info.Shape.Elements())
	}
	return &Buffer{info: info, data: data}, nil
}

// AllocBuffer allocates Go memory for info.
func AllocBuffer(info TensorInfo) (*Buffer, error) {
	if !info.Shape.Fixed() {
		return nil, errors.Errorf("tensor %q has a dynamic shape %v", info.Name, info.Shape)
	}
	data, err := makeData(info.DType, int(info.Shape.Elements()))
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %q", info.Name)
	}
	return &Buffer{info: info, data: data}, nil
}

// Info returns the tensor description.
func (b *Buffer) Info() TensorInfo {
	return b.info
}

// Data returns the backing slice. Writes to it are seen by the next upload.
func (b *Buffer) Data() any {
	return b.data
}

// Tensor returns a view sharing the buffer memory.
func (b *Buffer) Tensor() Tensor {
	return Tensor{Name: b.info.Name, Shape: b.info.Shape, Data: b.data}
}

// Len returns the element count.
func (b *Buffer) Len() int {
	return int(b.info.Shape.Elements())
}

// CopyFrom copies t into the buffer. t must have the same element type and flattened count; the
// shape itself is not checked so callers may pass flat slices.
func (b *Buffer) CopyFrom(t Tensor) error {
	if err := b.accepts(t); err != nil {
		return err
	}
	reflect.Copy(reflect.ValueOf(b.data), reflect.ValueOf(t.Data))
	return nil
}

func (b *Buffer) accepts(t Tensor) error {
	if got := t.DType(); got != b.info.DType {
		return &InvalidInputError{
			Tensor: b.info.Name,
			Reason: "dtype " + got.String() + ", want " + b.info.DType.String(),
		}
	}
	if got := int64(t.Len()); got != b.info.Shape.Elements() {
		return &InvalidInputError{
			Tensor:   b.info.Name,
			Expected: b.info.Shape.Elements(),
			Got:      got,
			Reason:   "element count mismatch",
		}
	}
	return nil
}

// Randomize fills the buffer with noise for warmup.
func (b *Buffer) Randomize(rng *rand.Rand) {
	randomize(b.data, rng)
}

// arena indexes the fixed buffers of one loaded model.
type arena struct {
	inputs  []*Buffer
	outputs []*Buffer
	byName  map[string]*Buffer
}

func newArena(inputs, outputs []*Buffer) (*arena, error) {
	if len(inputs) == 0 {
		return nil, errors.New("model declares no inputs")
	}
	if len(outputs) == 0 {
		return nil, errors.New("model declares no outputs")
	}
	a := &arena{
		inputs:  inputs,
		outputs: outputs,
		byName:  make(map[string]*Buffer, len(inputs)+len(outputs)),
	}
	for _, b := range append(append([]*Buffer(nil), inputs...), outputs...) {
		if b == nil {
			return nil, errors.New("backend returned a nil buffer")
		}
		if _, dup := a.byName[b.info.Name]; dup {
			return nil, errors.Errorf("duplicate tensor name %q", b.info.Name)
		}
		a.byName[b.info.Name] = b
	}
	return a, nil
}

func infos(buffers []*Buffer) []TensorInfo {
	out := make([]TensorInfo, len(buffers))
	for i, b := range buffers {
		out[i] = b.info
	}
	return out
}
