package xmath

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDivDownRoundsDown(t *testing.T) {
	x := uint256.NewInt(7)
	y := uint256.NewInt(3)
	d := uint256.NewInt(2)
	got, err := MulDivDown(x, y, d)
	if err != nil {
		t.Fatalf("MulDivDown: %v", err)
	}
	if got.Uint64() != 10 { // floor(21/2) = 10
		t.Errorf("MulDivDown(7,3,2) = %d, want 10", got.Uint64())
	}
}

func TestMulDivUpRoundsUp(t *testing.T) {
	x := uint256.NewInt(7)
	y := uint256.NewInt(3)
	d := uint256.NewInt(2)
	got, err := MulDivUp(x, y, d)
	if err != nil {
		t.Fatalf("MulDivUp: %v", err)
	}
	if got.Uint64() != 11 { // ceil(21/2) = 11
		t.Errorf("MulDivUp(7,3,2) = %d, want 11", got.Uint64())
	}
}

func TestMulDivDivByZero(t *testing.T) {
	x := uint256.NewInt(1)
	z := uint256.NewInt(0)
	if _, err := MulDivDown(x, x, z); err != ErrDivByZero {
		t.Errorf("MulDivDown by zero = %v, want ErrDivByZero", err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	max := new(uint256.Int).Not(uint256.NewInt(0))
	one := uint256.NewInt(1)
	if _, err := MulDivDown(max, max, one); err != ErrOverflow {
		t.Errorf("MulDivDown(max,max,1) = %v, want ErrOverflow", err)
	}
}

func TestX128DivByZeroReturnsZero(t *testing.T) {
	amount := uint256.NewInt(100)
	zero := uint256.NewInt(0)
	got, err := X128Div(amount, zero)
	if err != nil {
		t.Fatalf("X128Div: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("X128Div(100,0) = %s, want 0", got.Dec())
	}
}

func TestInvertRayRoundTrips(t *testing.T) {
	p, err := InvertRay(RAY)
	if err != nil {
		t.Fatalf("InvertRay(RAY): %v", err)
	}
	if !p.Eq(RAY) {
		t.Errorf("InvertRay(RAY) = %s, want RAY", p.Dec())
	}
}

func TestApplyFeeMicrobipsZeroFeeIsIdentity(t *testing.T) {
	p := uint256.NewInt(123456)
	out, err := ApplyFeeMicrobips(p, 0)
	if err != nil {
		t.Fatalf("ApplyFeeMicrobips: %v", err)
	}
	if !out.Eq(p) {
		t.Errorf("ApplyFeeMicrobips(p,0) = %s, want %s", out.Dec(), p.Dec())
	}
}

func TestApplyFeeMicrobipsReducesPrice(t *testing.T) {
	p := uint256.NewInt(1_000_000)
	out, err := ApplyFeeMicrobips(p, 200_000) // 20%
	if err != nil {
		t.Fatalf("ApplyFeeMicrobips: %v", err)
	}
	if out.Uint64() != 800_000 {
		t.Errorf("ApplyFeeMicrobips(1e6,200000) = %d, want 800000", out.Uint64())
	}
}

func TestAddSignedLiquidityPositiveDelta(t *testing.T) {
	liq := uint256.NewInt(100)
	delta := big.NewInt(50)
	out, err := AddSignedLiquidity(liq, delta)
	if err != nil {
		t.Fatalf("AddSignedLiquidity: %v", err)
	}
	if out.Uint64() != 150 {
		t.Errorf("AddSignedLiquidity(100,+50) = %d, want 150", out.Uint64())
	}
}

func TestAddSignedLiquidityUnderflowsBelowZero(t *testing.T) {
	liq := uint256.NewInt(10)
	delta := big.NewInt(-20)
	if _, err := AddSignedLiquidity(liq, delta); err != ErrOverflow {
		t.Errorf("AddSignedLiquidity(10,-20) = %v, want ErrOverflow", err)
	}
}

func TestAddSignedLiquidityOverflowsAbove128Bits(t *testing.T) {
	maxU128 := new(big.Int).Lsh(big.NewInt(1), 128)
	liq, _ := uint256.FromBig(new(big.Int).Sub(maxU128, big.NewInt(1)))
	delta := big.NewInt(10)
	if _, err := AddSignedLiquidity(liq, delta); err != ErrOverflow {
		t.Errorf("AddSignedLiquidity(max-1,+10) = %v, want ErrOverflow", err)
	}
}
