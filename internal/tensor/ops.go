package tensor

// Method set delegating to the backend. Each op allocates its result;
// receivers are never mutated.

// Add returns t + other with broadcasting.
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T](t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub returns t - other with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T](t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul returns the element-wise product with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T](t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div returns the element-wise quotient with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T](t.backend.Div(t.raw, other.raw), t.backend)
}

// MatMul returns the 2-D matrix product t @ other.
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T](t.backend.MatMul(t.raw, other.raw), t.backend)
}

// BatchMatMul returns the batched matrix product over matching batch dims.
func (t *Tensor[T, B]) BatchMatMul(other *Tensor[T, B]) *Tensor[T, B] {
	return New[T](t.backend.BatchMatMul(t.raw, other.raw), t.backend)
}

// AddScalar returns t + scalar.
func (t *Tensor[T, B]) AddScalar(scalar float32) *Tensor[T, B] {
	return New[T](t.backend.AddScalar(t.raw, scalar), t.backend)
}

// MulScalar returns t * scalar.
func (t *Tensor[T, B]) MulScalar(scalar float32) *Tensor[T, B] {
	return New[T](t.backend.MulScalar(t.raw, scalar), t.backend)
}

// DivScalar returns t / scalar.
func (t *Tensor[T, B]) DivScalar(scalar float32) *Tensor[T, B] {
	return New[T](t.backend.DivScalar(t.raw, scalar), t.backend)
}

// Exp returns e^t element-wise.
func (t *Tensor[T, B]) Exp() *Tensor[T, B] {
	return New[T](t.backend.Exp(t.raw), t.backend)
}

// Sqrt returns the element-wise square root.
func (t *Tensor[T, B]) Sqrt() *Tensor[T, B] {
	return New[T](t.backend.Sqrt(t.raw), t.backend)
}

// Rsqrt returns the element-wise reciprocal square root.
func (t *Tensor[T, B]) Rsqrt() *Tensor[T, B] {
	return New[T](t.backend.Rsqrt(t.raw), t.backend)
}

// Gelu applies the exact (erf-based) GELU element-wise.
func (t *Tensor[T, B]) Gelu() *Tensor[T, B] {
	return New[T](t.backend.Gelu(t.raw), t.backend)
}

// Softmax normalizes along dim. Negative dims count from the end.
func (t *Tensor[T, B]) Softmax(dim int) *Tensor[T, B] {
	return New[T](t.backend.Softmax(t.raw, dim), t.backend)
}

// LogSoftmax returns log(softmax) along dim, computed stably.
func (t *Tensor[T, B]) LogSoftmax(dim int) *Tensor[T, B] {
	return New[T](t.backend.LogSoftmax(t.raw, dim), t.backend)
}

// MeanDim averages along dim, optionally keeping it as size 1.
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	return New[T](t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// Reshape returns the tensor under a new shape with equal element count.
func (t *Tensor[T, B]) Reshape(dims ...int) *Tensor[T, B] {
	return New[T](t.backend.Reshape(t.raw, Shape(dims)), t.backend)
}

// Transpose permutes axes. With no arguments it reverses them.
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	return New[T](t.backend.Transpose(t.raw, axes...), t.backend)
}

// Unsqueeze inserts a size-1 dimension at dim.
func (t *Tensor[T, B]) Unsqueeze(dim int) *Tensor[T, B] {
	return New[T](t.backend.Unsqueeze(t.raw, dim), t.backend)
}

// MaskedFill writes value wherever the indicator mask is zero. The mask
// broadcasts against t per the usual right-aligned rules.
func (t *Tensor[T, B]) MaskedFill(mask *Tensor[float32, B], value float32) *Tensor[T, B] {
	return New[T](t.backend.MaskedFill(t.raw, mask.Raw(), value), t.backend)
}

// Embedding treats t as a [vocab, dim] table and gathers rows by indices,
// producing [indices..., dim].
func (t *Tensor[T, B]) Embedding(indices *Tensor[int32, B]) *Tensor[float32, B] {
	return New[float32](t.backend.Embedding(t.raw, indices.Raw()), t.backend)
}
