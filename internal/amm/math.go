package amm

import (
	"math"

	"github.com/holiman/uint256"
)

// BpsDenominator is the basis-point scale used by all fee parameters.
const BpsDenominator uint64 = 10_000

var maxUint64 = uint256.NewInt(math.MaxUint64)

// MulDiv returns floor(a*b/denominator). The product is formed in 256 bits so
// it cannot wrap; the quotient must fit in a uint64.
func MulDiv(a, b, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, ErrDivisionByZero
	}
	x := uint256.NewInt(a)
	y := uint256.NewInt(b)
	d := uint256.NewInt(denominator)

	q, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow || q.Gt(maxUint64) {
		return 0, ErrArithmeticOverflow
	}
	return q.Uint64(), nil
}

// Add returns a+b or ErrArithmeticOverflow.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrArithmeticOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// FloorSqrt returns floor(sqrt(a*b)).
func FloorSqrt(a, b uint64) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return new(uint256.Int).Sqrt(product).Uint64()
}

// Product returns a*b as a 256-bit integer, used for constant-product comparisons.
func Product(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
}
