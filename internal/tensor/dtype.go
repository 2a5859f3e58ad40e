package tensor

import "fmt"

// DataType identifies the element type of a RawTensor buffer.
type DataType uint8

const (
	// Float32 is the compute dtype for all model parameters and activations.
	Float32 DataType = iota
	// Int32 is used for token ID tensors.
	Int32
)

// Size returns the size of one element in bytes.
func (d DataType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	default:
		panic(fmt.Sprintf("tensor: unknown dtype %d", d))
	}
}

// String returns the canonical name used in checkpoint metadata.
func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("dtype(%d)", d)
	}
}

// ParseDataType maps a checkpoint metadata name back to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "int32":
		return Int32, nil
	default:
		return 0, fmt.Errorf("tensor: unknown dtype %q", s)
	}
}

// Device identifies where a tensor's buffer lives.
type Device uint8

const (
	// CPU is host memory. It is the only device this build supports,
	// but the Backend seam keeps room for accelerator backends.
	CPU Device = iota
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	default:
		return fmt.Sprintf("device(%d)", d)
	}
}
