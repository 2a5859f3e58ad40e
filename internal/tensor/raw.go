package tensor

import (
	"fmt"
	"unsafe"
)

// RawTensor is an untyped, contiguous, row-major tensor buffer.
//
// It is the unit backends operate on: a backend receives RawTensors, reads
// their typed views, and produces fresh RawTensors. RawTensors do not alias
// each other; every op allocates its result, which keeps aliasing reasoning
// trivial at the cost of copies.
type RawTensor struct {
	data    []byte
	shape   Shape
	strides []int
	dtype   DataType
	device  Device
}

// NewRaw allocates a zero-filled RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &RawTensor{
		data:    make([]byte, shape.NumElements()*dtype.Size()),
		shape:   shape.Clone(),
		strides: shape.Strides(),
		dtype:   dtype,
		device:  device,
	}, nil
}

// MustNewRaw is NewRaw for shapes known valid at the call site.
func MustNewRaw(shape Shape, dtype DataType, device Device) *RawTensor {
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRawFromFloat32 allocates a Float32 RawTensor initialized from data.
func NewRawFromFloat32(shape Shape, data []float32, device Device) (*RawTensor, error) {
	r, err := NewRaw(shape, Float32, device)
	if err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	copy(r.AsFloat32(), data)
	return r, nil
}

// NewRawFromInt32 allocates an Int32 RawTensor initialized from data.
func NewRawFromInt32(shape Shape, data []int32, device Device) (*RawTensor, error) {
	r, err := NewRaw(shape, Int32, device)
	if err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	copy(r.AsInt32(), data)
	return r, nil
}

// Shape returns the tensor's shape. Callers must not mutate it.
func (r *RawTensor) Shape() Shape { return r.shape }

// Strides returns row-major strides in elements.
func (r *RawTensor) Strides() []int { return r.strides }

// DType returns the element type.
func (r *RawTensor) DType() DataType { return r.dtype }

// Device returns where the buffer lives.
func (r *RawTensor) Device() Device { return r.device }

// NumElements returns the total element count.
func (r *RawTensor) NumElements() int { return r.shape.NumElements() }

// ByteSize returns the buffer length in bytes.
func (r *RawTensor) ByteSize() int { return len(r.data) }

// Data returns the underlying byte buffer.
func (r *RawTensor) Data() []byte { return r.data }

// AsFloat32 returns a typed view over the buffer. Panics on dtype mismatch.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor: AsFloat32 on %s tensor", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 returns a typed view over the buffer. Panics on dtype mismatch.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor: AsInt32 on %s tensor", r.dtype))
	}
	if len(r.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone returns a deep copy.
func (r *RawTensor) Clone() *RawTensor {
	out := MustNewRaw(r.shape, r.dtype, r.device)
	copy(out.data, r.data)
	return out
}

// WithShape returns a view-copy of the buffer under a new shape with the
// same element count. Used by backends for reshape and unsqueeze.
func (r *RawTensor) WithShape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)",
			r.shape, r.NumElements(), shape, shape.NumElements())
	}
	out := r.Clone()
	out.shape = shape.Clone()
	out.strides = shape.Strides()
	return out, nil
}

func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor(shape=%v, dtype=%s, device=%s)", r.shape, r.dtype, r.device)
}
