// Package xmath implements the widened fixed-point arithmetic the
// settlement core needs: RAY (1e27) price conversions, X128 reward-growth
// math, and the mixed-signed net-liquidity accumulation used by tick
// crossings.
//
// holiman/uint256 values are fixed at 256 bits and its Add/Sub already wrap
// modulo 2^256 (two's complement), which is exactly the wraparound rule the
// AMM's arithmetic relies on. The one thing uint256 doesn't give us
// directly is a correctly-rounded 512-bit mulDiv, so that piece goes
// through math/big and back.
package xmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrDivByZero = errors.New("xmath: division by zero")
	ErrOverflow  = errors.New("xmath: result overflows 256 bits")
)

var (
	bigOne   = big.NewInt(1)
	x128     = new(big.Int).Lsh(bigOne, 128)
	u256Ceil = new(big.Int).Lsh(bigOne, 256)
)

// RAY is the 10^27 fixed-point scale used for price-1-over-0.
var RAY = mustFromDecimal("1000000000000000000000000000")

func mustFromDecimal(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// MulDivDown computes floor(x*y/d) using a widened 512-bit intermediate.
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	return mulDiv(x, y, d, false)
}

// MulDivUp computes ceil(x*y/d) using a widened 512-bit intermediate.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	return mulDiv(x, y, d, true)
}

func mulDiv(x, y, d *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	bx, by, bd := x.ToBig(), y.ToBig(), d.ToBig()
	product := new(big.Int).Mul(bx, by)
	q, rem := new(big.Int).QuoRem(product, bd, new(big.Int))
	if roundUp && rem.Sign() != 0 {
		q.Add(q, bigOne)
	}
	if q.Cmp(u256Ceil) >= 0 {
		return nil, ErrOverflow
	}
	out, overflow := uint256.FromBig(q)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// X128Div computes floor(amount * 2^128 / denom), the flat X128 division
// used by current-tick-only reward distribution. Returns zero,nil if denom
// is zero: an empty pool absorbs the reward as zero growth rather than
// erroring.
func X128Div(amount, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return uint256.NewInt(0), nil
	}
	bx128, _ := uint256.FromBig(x128)
	return MulDivDown(amount, bx128, denom)
}

// FullMulX128 computes floor(a * b / 2^128) with saturation at the 256-bit
// ceiling, as used when crediting accumulated reward growth on a
// liquidity-removal settlement.
func FullMulX128(a, b *uint256.Int) *uint256.Int {
	ba, bb := a.ToBig(), b.ToBig()
	product := new(big.Int).Mul(ba, bb)
	product.Rsh(product, 128)
	if product.Cmp(u256Ceil) >= 0 {
		return new(uint256.Int).Not(uint256.NewInt(0)) // saturate to max u256
	}
	out, _ := uint256.FromBig(product)
	return out
}

// RayMulDown computes floor(x * p / RAY), the RAY-scaled price conversion
// used when pricing a swap leg.
func RayMulDown(x, p *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(x, p, RAY)
}

// RayMulUp computes ceil(x * p / RAY).
func RayMulUp(x, p *uint256.Int) (*uint256.Int, error) {
	return MulDivUp(x, p, RAY)
}

// InvertRay computes RAY*RAY/p, the cached inverse of a RAY-scaled price.
func InvertRay(p *uint256.Int) (*uint256.Int, error) {
	return MulDivDown(RAY, RAY, p)
}

// ApplyFeeMicrobips computes p' = p * (1e6 - feeMicrobips) / 1e6, the
// bundle-fee-reduced clearing price applied to a user order's limit check.
func ApplyFeeMicrobips(p *uint256.Int, feeMicrobips uint32) (*uint256.Int, error) {
	denom := uint256.NewInt(1_000_000)
	factor := new(uint256.Int).Sub(denom, uint256.NewInt(uint64(feeMicrobips)))
	return MulDivDown(p, factor, denom)
}

// AddSignedLiquidity adds a signed i128 delta to an unsigned u128 liquidity
// value, returning ErrOverflow on underflow past zero or overflow past
// 2^128-1. delta is a *big.Int because net-liquidity deltas are signed
// 128-bit and Go has no native int128, so callers hold it widened.
func AddSignedLiquidity(liquidity *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	bl := liquidity.ToBig()
	sum := new(big.Int).Add(bl, delta)
	if sum.Sign() < 0 {
		return nil, ErrOverflow
	}
	maxU128 := new(big.Int).Lsh(bigOne, 128)
	if sum.Cmp(maxU128) >= 0 {
		return nil, ErrOverflow
	}
	out, overflow := uint256.FromBig(sum)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}
