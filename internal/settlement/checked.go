package settlement

import (
	"math/bits"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

func addU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrMathOverflow
	}
	return sum, nil
}

func mulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, domain.ErrMathOverflow
	}
	return lo, nil
}

func divU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, domain.ErrMathOverflow
	}
	return a / b, nil
}
