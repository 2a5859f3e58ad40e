// Package tensor provides the typed tensor façade the model stack is built
// on: an untyped RawTensor buffer, a Backend compute contract, and a generic
// Tensor[T, B] wrapper that keeps element types honest at compile time.
package tensor

import "fmt"

// DType constrains the element types a Tensor can carry.
type DType interface {
	~float32 | ~int32
}

// Tensor is a typed handle over a RawTensor bound to a backend.
//
// The zero value is not usable; construct via New or the creation helpers.
type Tensor[T DType, B Backend] struct {
	raw     *RawTensor
	backend B
}

// New wraps a RawTensor. Panics if the raw dtype does not match T.
func New[T DType, B Backend](raw *RawTensor, backend B) *Tensor[T, B] {
	if want := dtypeOf[T](); raw.DType() != want {
		panic(fmt.Sprintf("tensor: raw dtype %s does not match tensor type %s", raw.DType(), want))
	}
	return &Tensor[T, B]{raw: raw, backend: backend}
}

func dtypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case int32:
		return Int32
	default:
		panic("tensor: unsupported element type")
	}
}

// Raw returns the underlying RawTensor.
func (t *Tensor[T, B]) Raw() *RawTensor { return t.raw }

// Backend returns the backend this tensor is bound to.
func (t *Tensor[T, B]) Backend() B { return t.backend }

// Shape returns the tensor's shape.
func (t *Tensor[T, B]) Shape() Shape { return t.raw.Shape() }

// DType returns the element type.
func (t *Tensor[T, B]) DType() DataType { return t.raw.DType() }

// NumElements returns the total element count.
func (t *Tensor[T, B]) NumElements() int { return t.raw.NumElements() }

// Data returns the typed view over the buffer. Mutating it mutates the
// tensor; reserve that for initialization and tests.
func (t *Tensor[T, B]) Data() []T {
	switch dtypeOf[T]() {
	case Float32:
		return any(t.raw.AsFloat32()).([]T)
	case Int32:
		return any(t.raw.AsInt32()).([]T)
	default:
		panic("tensor: unsupported element type")
	}
}

// ToSlice returns a copy of the elements in row-major order.
func (t *Tensor[T, B]) ToSlice() []T {
	data := t.Data()
	out := make([]T, len(data))
	copy(out, data)
	return out
}

// At returns the element at the given multi-index.
func (t *Tensor[T, B]) At(index ...int) T {
	shape := t.raw.Shape()
	if len(index) != len(shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(index), shape))
	}
	strides := t.raw.Strides()
	flat := 0
	for i, idx := range index {
		if idx < 0 || idx >= shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d (size %d)", idx, i, shape[i]))
		}
		flat += idx * strides[i]
	}
	return t.Data()[flat]
}

// Clone returns a deep copy.
func (t *Tensor[T, B]) Clone() *Tensor[T, B] {
	return New[T](t.raw.Clone(), t.backend)
}

// Cast converts a tensor to a different element type on the same backend.
func Cast[To, From DType, B Backend](t *Tensor[From, B]) *Tensor[To, B] {
	return New[To](t.Backend().Cast(t.Raw(), dtypeOf[To]()), t.Backend())
}

func (t *Tensor[T, B]) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, backend=%s)", t.Shape(), t.DType(), t.backend.Name())
}
