package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Zeros returns a zero-filled tensor.
func Zeros[T DType, B Backend](shape Shape, backend B) *Tensor[T, B] {
	return New[T](MustNewRaw(shape, dtypeOf[T](), backend.Device()), backend)
}

// Ones returns a tensor filled with 1.
func Ones[T DType, B Backend](shape Shape, backend B) *Tensor[T, B] {
	return Full[T](shape, T(1), backend)
}

// Full returns a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, backend B) *Tensor[T, B] {
	t := Zeros[T](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// FromSlice builds a tensor from row-major data.
func FromSlice[T DType, B Backend](data []T, shape Shape, backend B) (*Tensor[T, B], error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := Zeros[T](shape, backend)
	copy(t.Data(), data)
	return t, nil
}

// MustFromSlice is FromSlice for inputs known valid at the call site.
func MustFromSlice[T DType, B Backend](data []T, shape Shape, backend B) *Tensor[T, B] {
	t, err := FromSlice(data, shape, backend)
	if err != nil {
		panic(err)
	}
	return t
}

// Randn returns a tensor of standard normal samples from rng, generated
// with the Box-Muller transform.
func Randn[B Backend](shape Shape, rng *rand.Rand, backend B) *Tensor[float32, B] {
	t := Zeros[float32](shape, backend)
	data := t.Data()
	for i := 0; i < len(data); i += 2 {
		u1 := rng.Float64()
		for u1 == 0 {
			u1 = rng.Float64()
		}
		u2 := rng.Float64()
		r := math.Sqrt(-2 * math.Log(u1))
		data[i] = float32(r * math.Cos(2*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = float32(r * math.Sin(2*math.Pi*u2))
		}
	}
	return t
}

// Arange returns [0, 1, ..., n-1] as an Int32 tensor.
func Arange[B Backend](n int, backend B) *Tensor[int32, B] {
	t := Zeros[int32](Shape{n}, backend)
	data := t.Data()
	for i := range data {
		data[i] = int32(i)
	}
	return t
}
