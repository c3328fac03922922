// Package q128 holds helpers for unsigned Q128 fixed-point values stored in 256-bit words.
package q128

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Resolution is the number of fractional bits.
const Resolution = 128

// One returns 1.0 in Q128 (2^128).
func One() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)
}

// Zero returns a fresh zero word.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// FromSeconds converts whole seconds into Q128 seconds.
func FromSeconds(seconds uint64) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(seconds), Resolution)
}

// SubClamp returns x - y, or zero when y > x.
func SubClamp(x, y *uint256.Int) *uint256.Int {
	out, underflow := new(uint256.Int).SubOverflow(orZero(x), orZero(y))
	if underflow {
		return new(uint256.Int)
	}
	return out
}

// AddClamp returns x + y, saturating at the maximum 256-bit value.
func AddClamp(x, y *uint256.Int) *uint256.Int {
	out, overflow := new(uint256.Int).AddOverflow(orZero(x), orZero(y))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

// Mul returns x * y and whether the product overflowed 256 bits.
func Mul(x, y *uint256.Int) (*uint256.Int, bool) {
	return new(uint256.Int).MulOverflow(orZero(x), orZero(y))
}

// MulDiv returns floor(x * y / d) using a 512-bit intermediate.
// The second result is true when d is zero or the quotient does not fit in 256 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, bool) {
	if d == nil || d.IsZero() {
		return new(uint256.Int), true
	}
	return new(uint256.Int).MulDivOverflow(orZero(x), orZero(y), d)
}

// Min returns the smaller of x and y as a copy.
func Min(x, y *uint256.Int) *uint256.Int {
	if orZero(x).Lt(orZero(y)) {
		return Clone(x)
	}
	return Clone(y)
}

// Clone copies x, treating nil as zero.
func Clone(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Set(orZero(x))
}

// Format renders x as a base-10 string.
func Format(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}

// Parse reads a base-10 or 0x-prefixed hex integer that fits in 256 bits.
func Parse(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	base := 10
	digits := value
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		base = 16
		digits = value[2:]
	}
	parsed, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid uint256: %s", value)
	}
	return FromBig(parsed)
}

// FromBig converts a non-negative big.Int into a 256-bit word.
func FromBig(value *big.Int) (*uint256.Int, error) {
	if value == nil {
		return new(uint256.Int), nil
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative value: %s", value)
	}
	out, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fmt.Errorf("uint256 overflow: %s", value)
	}
	return out, nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
