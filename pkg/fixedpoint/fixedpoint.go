// Package fixedpoint provides overflow-checked integer arithmetic for
// basis-point scores and scaled multipliers.
//
// Nothing here wraps silently: every operation that can leave its range
// returns ErrOverflow, ErrUnderflow or ErrDivisionByZero. Division always
// rounds toward zero so independent implementations agree bit for bit.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

const (
	// BPS is the basis-point scale (10_000 = 100%).
	BPS = 10_000
	// MultiplierScale is the scale of revenue multipliers (100 = 1.0x).
	MultiplierScale = 100
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Add returns a+b.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("add %d+%d: %w", a, b, ErrOverflow)
	}
	return sum, nil
}

// Sub returns a-b.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("sub %d-%d: %w", a, b, ErrUnderflow)
	}
	return diff, nil
}

// Mul returns a*b.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("mul %d*%d: %w", a, b, ErrOverflow)
	}
	return lo, nil
}

// MulScaled returns a*b/scale using a 128-bit intermediate product.
func MulScaled(a, b, scale uint64) (uint64, error) {
	if scale == 0 {
		return 0, fmt.Errorf("mul_scaled: %w", ErrDivisionByZero)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= scale {
		return 0, fmt.Errorf("mul_scaled %d*%d/%d: %w", a, b, scale, ErrOverflow)
	}
	quo, _ := bits.Div64(hi, lo, scale)
	return quo, nil
}

// DivScaled returns a*scale/b using a 128-bit intermediate product.
func DivScaled(a, b, scale uint64) (uint64, error) {
	if b == 0 {
		return 0, fmt.Errorf("div_scaled: %w", ErrDivisionByZero)
	}
	hi, lo := bits.Mul64(a, scale)
	if hi >= b {
		return 0, fmt.Errorf("div_scaled %d*%d/%d: %w", a, scale, b, ErrOverflow)
	}
	quo, _ := bits.Div64(hi, lo, b)
	return quo, nil
}

// BPSOf returns amount*bps/10_000, rounded down. bps above 10_000 is
// rejected because the result would exceed amount.
func BPSOf(amount uint64, bps uint16) (uint64, error) {
	if bps > BPS {
		return 0, fmt.Errorf("bps %d above %d: %w", bps, BPS, ErrOverflow)
	}
	return MulScaled(amount, uint64(bps), BPS)
}

// SaturatingAdd returns a+b, capped at math.MaxUint64.
func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// SaturatingSub returns a-b, floored at zero.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// AddInt64 returns a+b.
func AddInt64(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return 0, fmt.Errorf("add %d+%d: %w", a, b, ErrOverflow)
		}
		return 0, fmt.Errorf("add %d+%d: %w", a, b, ErrUnderflow)
	}
	return sum, nil
}

// MulDivInt64 returns a*num/den rounded toward zero. The product is
// computed on magnitudes in 128 bits, so only the quotient can overflow.
func MulDivInt64(a, num, den int64) (int64, error) {
	if den == 0 {
		return 0, fmt.Errorf("mul_div: %w", ErrDivisionByZero)
	}
	neg := (a < 0) != (num < 0)
	if den < 0 {
		neg = !neg
	}
	if a == 0 || num == 0 {
		return 0, nil
	}

	hi, lo := bits.Mul64(absUint64(a), absUint64(num))
	d := absUint64(den)
	if hi >= d {
		return 0, fmt.Errorf("mul_div %d*%d/%d: %w", a, num, den, overflowKind(neg))
	}
	quo, _ := bits.Div64(hi, lo, d)

	if neg {
		if quo > uint64(math.MaxInt64)+1 {
			return 0, fmt.Errorf("mul_div %d*%d/%d: %w", a, num, den, ErrUnderflow)
		}
		return -int64(quo), nil //nolint:gosec // bounded above
	}
	if quo > math.MaxInt64 {
		return 0, fmt.Errorf("mul_div %d*%d/%d: %w", a, num, den, ErrOverflow)
	}
	return int64(quo), nil
}

// ClampInt64 bounds v into [lo, hi].
func ClampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absUint64(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

func overflowKind(negative bool) error {
	if negative {
		return ErrUnderflow
	}
	return ErrOverflow
}
