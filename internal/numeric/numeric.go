package numeric

import "golang.org/x/exp/constraints"

// Max returns the larger of the two provided values.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Majority returns the smallest count that is strictly more than half of size.
func Majority[T constraints.Integer](size T) T {
	return size/2 + 1
}
