package q128

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestFromSeconds(t *testing.T) {
	got := FromSeconds(1000)
	want := new(big.Int).Lsh(big.NewInt(1000), 128)
	if got.ToBig().Cmp(want) != 0 {
		t.Fatalf("from seconds mismatch: %s != %s", got.ToBig(), want)
	}
}

func TestSubClamp(t *testing.T) {
	if got := SubClamp(uint256.NewInt(5), uint256.NewInt(7)); !got.IsZero() {
		t.Fatalf("expected clamp to zero, got %s", Format(got))
	}
	if got := SubClamp(uint256.NewInt(7), uint256.NewInt(5)); got.Uint64() != 2 {
		t.Fatalf("expected 2, got %s", Format(got))
	}
	if got := SubClamp(nil, nil); !got.IsZero() {
		t.Fatalf("nil operands should read as zero")
	}
}

func TestMulDivUsesWideIntermediate(t *testing.T) {
	// (2^200 * 2^100) / 2^150 overflows 256 bits before the division.
	x := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	y := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	d := new(uint256.Int).Lsh(uint256.NewInt(1), 150)

	got, overflow := MulDiv(x, y, d)
	if overflow {
		t.Fatalf("unexpected overflow")
	}
	want := new(big.Int).Lsh(big.NewInt(1), 150)
	if got.ToBig().Cmp(want) != 0 {
		t.Fatalf("muldiv mismatch: %s != %s", got.ToBig(), want)
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	got, overflow := MulDiv(uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0))
	if !overflow || !got.IsZero() {
		t.Fatalf("expected overflow flag and zero result")
	}
}

func TestParseAndFormat(t *testing.T) {
	val, err := Parse("100000000000000000000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if Format(val) != "100000000000000000000" {
		t.Fatalf("format mismatch: %s", Format(val))
	}

	hexVal, err := Parse("0xff")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if hexVal.Uint64() != 255 {
		t.Fatalf("hex mismatch: %d", hexVal.Uint64())
	}

	if _, err := Parse("-1"); err == nil {
		t.Fatalf("expected error for negative value")
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256).String()
	if _, err := Parse(tooBig); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestAddClampSaturates(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	if got := AddClamp(max, uint256.NewInt(1)); !got.Eq(max) {
		t.Fatalf("expected saturation, got %s", Format(got))
	}
	if got := AddClamp(uint256.NewInt(2), uint256.NewInt(3)); got.Uint64() != 5 {
		t.Fatalf("expected 5, got %s", Format(got))
	}
}
