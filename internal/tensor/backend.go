package tensor

// Backend is the compute contract the model stack is generic over.
//
// All ops are pure: inputs are never mutated and every result is a freshly
// allocated RawTensor. Invalid inputs (shape mismatches, unsupported dtypes,
// out-of-range indices) are programming errors and panic.
//
// Element-wise binary ops broadcast per BroadcastShapes. Scalar and unary
// math ops operate on Float32 tensors only.
type Backend interface {
	// Element-wise arithmetic with broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul multiplies two 2-D tensors: [m, k] x [k, n] -> [m, n].
	MatMul(a, b *RawTensor) *RawTensor
	// BatchMatMul multiplies tensors with matching leading batch dims:
	// [..., m, k] x [..., k, n] -> [..., m, n].
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Scalar ops.
	AddScalar(x *RawTensor, scalar float32) *RawTensor
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	DivScalar(x *RawTensor, scalar float32) *RawTensor

	// Unary math.
	Exp(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Rsqrt(x *RawTensor) *RawTensor
	Gelu(x *RawTensor) *RawTensor

	// Softmax and LogSoftmax normalize along dim (negative dims count
	// from the end). Softmax subtracts the running max for stability.
	Softmax(x *RawTensor, dim int) *RawTensor
	LogSoftmax(x *RawTensor, dim int) *RawTensor

	// MeanDim averages along dim, optionally keeping it as size 1.
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Shape manipulation. Results are contiguous copies.
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor

	// MaskedFill writes value into x wherever mask is zero. The mask is a
	// Float32 indicator tensor (1 = keep, 0 = fill) broadcast against x.
	MaskedFill(x, mask *RawTensor, value float32) *RawTensor

	// Embedding gathers rows of weight [vocab, dim] by Int32 indices of any
	// shape, producing [indices..., dim]. Panics on out-of-range indices.
	Embedding(weight, indices *RawTensor) *RawTensor

	// Cast converts element types (Float32 <-> Int32).
	Cast(x *RawTensor, dtype DataType) *RawTensor

	// Name identifies the backend ("cpu").
	Name() string
	// Device reports where this backend allocates.
	Device() Device
}
