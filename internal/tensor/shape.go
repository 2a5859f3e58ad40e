package tensor

import (
	"fmt"
	"strings"
)

// Shape describes tensor dimensions, outermost first.
type Shape []int

// NumElements returns the total element count.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Strides returns row-major (C-contiguous) strides in elements.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	stride := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= s[i]
	}
	return strides
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("tensor: shape must have at least one dimension")
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("tensor: dimension %d must be positive, got %d", i, dim)
		}
	}
	return nil
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = fmt.Sprintf("%d", dim)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// BroadcastShapes computes the NumPy-style broadcast result of two shapes:
// dimensions align from the right, and a dimension of 1 stretches to match.
func BroadcastShapes(a, b Shape) (Shape, error) {
	rank := len(a)
	if len(b) > rank {
		rank = len(b)
	}
	out := make(Shape, rank)
	for i := 0; i < rank; i++ {
		da, db := 1, 1
		if idx := len(a) - rank + i; idx >= 0 {
			da = a[idx]
		}
		if idx := len(b) - rank + i; idx >= 0 {
			db = b[idx]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			return nil, fmt.Errorf("tensor: cannot broadcast shapes %v and %v", a, b)
		}
	}
	return out, nil
}
