// Package growth implements the per-pool reward accumulator: a global
// growth scalar plus a sparse per-tick "growth-outside" map, maintained on
// tick crossings and on reward distribution. Every value wraps modulo 2^256
// by construction (uint256.Int's Add/Sub already do this), which is what
// lets the growth-inside subtraction stay well-defined across an
// ever-growing accumulator.
package growth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/xmath"
)

// Pool holds one pool's reward state: a global growth scalar and a sparse
// per-tick growth-outside map. The zero value is an empty, freshly
// initialized pool.
type Pool struct {
	GlobalGrowth  *uint256.Int
	GrowthOutside map[int32]*uint256.Int
}

// New creates an empty pool accumulator.
func New() *Pool {
	return &Pool{
		GlobalGrowth:  uint256.NewInt(0),
		GrowthOutside: make(map[int32]*uint256.Int),
	}
}

func (p *Pool) outside(tick int32) *uint256.Int {
	v, ok := p.GrowthOutside[tick]
	if !ok {
		v = uint256.NewInt(0)
		p.GrowthOutside[tick] = v
	}
	return v
}

// CrossTick flips a tick's growth-outside value on crossing:
// growth-outside[tick] = global-growth - growth-outside[tick]. The host AMM
// calls this for every initialized tick the swap traverses.
func (p *Pool) CrossTick(tick int32) {
	cur := p.outside(tick)
	p.GrowthOutside[tick] = new(uint256.Int).Sub(p.GlobalGrowth, cur)
}

// GrowthInside computes the reward growth accumulated while the current
// tick sits inside [lower, upper).
func (p *Pool) GrowthInside(lower, upper, current int32) *uint256.Int {
	lo := p.outside(lower)
	hi := p.outside(upper)
	switch {
	case current < lower:
		return new(uint256.Int).Sub(lo, hi)
	case current >= upper:
		return new(uint256.Int).Sub(hi, lo)
	default:
		out := new(uint256.Int).Sub(p.GlobalGrowth, lo)
		return out.Sub(out, hi)
	}
}

// DistributeCurrentOnly donates amount to the current tick's range,
// expecting the pool's current liquidity to equal expectedLiquidity (the
// JIT-LP defense for the simple reward path). Returns the amount actually
// distributed (zero for the documented burn hazard below).
//
// If amount or expectedLiquidity is zero this is a no-op: donating at zero
// liquidity silently burns the donation rather than dividing by zero.
func (p *Pool) DistributeCurrentOnly(amount, expectedLiquidity, currentLiquidity *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() || expectedLiquidity.IsZero() {
		return uint256.NewInt(0), nil
	}
	if !expectedLiquidity.Eq(currentLiquidity) {
		return nil, apperr.ErrJustInTimeLiquidityChange
	}
	growth, err := xmath.X128Div(amount, expectedLiquidity)
	if err != nil {
		return nil, err
	}
	p.GlobalGrowth = new(uint256.Int).Add(p.GlobalGrowth, growth)
	return amount, nil
}

// MultiTickInput is everything the reward loop needs to distribute across a
// contiguous run of initialized ticks.
type MultiTickInput struct {
	StartTick        int32
	StartLiquidity   *uint256.Int
	CurrentTick      int32
	CurrentLiquidity *uint256.Int
	Quantities       []*uint256.Int
	ExpectedChecksum *uint256.Int // low 160 bits significant

	// RewardedTicks is the initialized ticks the loop rewards, in traversal
	// order (ascending if StartTick <= CurrentTick, descending otherwise).
	// The swap driver fills it from InitializedTicksBetween(StartTick,
	// CurrentTick), so StartTick is left out and an initialized tick at
	// CurrentTick is included. The final quantity is for the range the loop
	// ends in.
	RewardedTicks []int32

	// LiquidityNet returns the signed net-liquidity recorded at tick.
	LiquidityNet func(tick int32) (*big.Int, error)
}

// DistributeMultiTick donates a sequence of quantities to the initialized
// ticks between StartTick and CurrentTick (inclusive of CurrentTick via the
// final quantity), updating growth-outside at each rewarded tick and
// advancing a running liquidity figure exactly as the host AMM's own
// liquidity-net bookkeeping would. Returns the total amount distributed.
func (p *Pool) DistributeMultiTick(in MultiTickInput) (*uint256.Int, error) {
	if len(in.Quantities) != len(in.RewardedTicks)+1 {
		return nil, apperr.ErrArithmeticOverflowUnderflow
	}

	ascending := in.StartTick <= in.CurrentTick
	liquidity := in.StartLiquidity
	cumulative := uint256.NewInt(0)
	checksum := make([]byte, 32)

	for i, tick := range in.RewardedTicks {
		q := in.Quantities[i]
		share, err := xmath.X128Div(q, liquidity)
		if err != nil {
			return nil, err
		}
		cumulative = new(uint256.Int).Add(cumulative, share)
		p.GrowthOutside[tick] = new(uint256.Int).Add(p.outside(tick), cumulative)

		checksum = nextChecksum(checksum, liquidity, tick)

		net, err := in.LiquidityNet(tick)
		if err != nil {
			return nil, err
		}
		delta := new(big.Int).Set(net)
		if !ascending {
			delta.Neg(delta)
		}
		next, err := xmath.AddSignedLiquidity(liquidity, delta)
		if err != nil {
			return nil, err
		}
		liquidity = next
	}

	// Final quantity applies to the current-tick range.
	lastQ := in.Quantities[len(in.Quantities)-1]
	share, err := xmath.X128Div(lastQ, liquidity)
	if err != nil {
		return nil, err
	}
	cumulative = new(uint256.Int).Add(cumulative, share)

	if !liquidity.Eq(in.CurrentLiquidity) {
		return nil, apperr.ErrWrongEndLiquidity
	}
	if !checksumMatches(checksum, in.ExpectedChecksum) {
		return nil, apperr.ErrJustInTimeLiquidityChange
	}

	p.GlobalGrowth = new(uint256.Int).Add(p.GlobalGrowth, cumulative)
	return cumulative, nil
}

func nextChecksum(prev []byte, liquidity *uint256.Int, tick int32) []byte {
	buf := make([]byte, 0, 32+32+4)
	buf = append(buf, prev...)
	buf = append(buf, liquidity.Bytes32()[:]...)
	var tb [4]byte
	tb[0] = byte(uint32(tick) >> 24)
	tb[1] = byte(uint32(tick) >> 16)
	tb[2] = byte(uint32(tick) >> 8)
	tb[3] = byte(uint32(tick))
	buf = append(buf, tb[:]...)
	return crypto.Keccak256(buf)
}

// checksumMatches compares the high 160 bits of the running checksum
// against the bundle-supplied expectation.
func checksumMatches(running []byte, expected *uint256.Int) bool {
	got := new(uint256.Int).SetBytes(running[:20])
	return got.Eq(expected)
}
