// Package swap implements the swap driver: for each pool update it issues a
// single exact-input swap to the host AMM, crosses every initialized tick
// the swap traversed through the growth accumulator, then applies the
// update's reward distribution and debits the total from the delta
// tracker.
package swap

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/amm"
	"github.com/angstrom-labs/angstrom-core/bundletables"
	"github.com/angstrom-labs/angstrom-core/delta"
	"github.com/angstrom-labs/angstrom-core/growth"
	"github.com/angstrom-labs/angstrom-core/pade"
)

// Driver runs pool updates against a pool manager and its growth
// accumulators.
type Driver struct {
	Pools   amm.PoolManager
	Growths map[amm.PoolID]*growth.Pool
}

func (d *Driver) growthFor(pool amm.PoolID) *growth.Pool {
	g, ok := d.Growths[pool]
	if !ok {
		g = growth.New()
		d.Growths[pool] = g
	}
	return g
}

// poolID derives a pool identity from its pair's two assets only (the first
// 12 bytes of asset0 followed by all 20 bytes of asset1; tick spacing is
// not part of it); production deployments would instead ask the host for the
// canonical pool id, but the capability surface only gives us asset/tick
// data, so we derive one here for addressing the growth-accumulator map.
func poolID(pair bundletables.ResolvedPair) amm.PoolID {
	var id amm.PoolID
	copy(id[:20], pair.Asset0[:])
	copy(id[12:], pair.Asset1[:])
	return id
}

// Run executes one PoolUpdate: the swap itself, tick-crossing bookkeeping,
// and its reward distribution. Total rewards distributed are subtracted
// from delta[asset0].
func (d *Driver) Run(u pade.PoolUpdate, pair bundletables.ResolvedPair, tracker *delta.Tracker) error {
	pool := poolID(pair)
	g := d.growthFor(pool)

	if u.SwapInQuantity != nil && !u.SwapInQuantity.IsZero() {
		tickBefore, err := d.Pools.CurrentTick(pool)
		if err != nil {
			return err
		}
		_, tickAfter, err := d.Pools.Swap(pool, u.ZeroForOne, u.SwapInQuantity)
		if err != nil {
			return err
		}

		crossed, err := d.Pools.InitializedTicksBetween(pool, tickBefore, tickAfter)
		if err != nil {
			return err
		}
		for _, tick := range crossed {
			g.CrossTick(tick)
		}
	}

	distributed, err := d.distribute(u, pool, g)
	if err != nil {
		return err
	}
	tracker.Sub(pair.Asset0, distributed)
	return nil
}

func (d *Driver) distribute(u pade.PoolUpdate, pool amm.PoolID, g *growth.Pool) (*uint256.Int, error) {
	currentLiquidity, err := d.Pools.CurrentLiquidity(pool)
	if err != nil {
		return nil, err
	}

	if u.Rewards.Kind == pade.RewardsCurrentOnly {
		return g.DistributeCurrentOnly(u.Rewards.Amount, u.Rewards.ExpectedLiquidity, currentLiquidity)
	}

	currentTick, err := d.Pools.CurrentTick(pool)
	if err != nil {
		return nil, err
	}
	rewarded, err := d.Pools.InitializedTicksBetween(pool, u.Rewards.StartTick, currentTick)
	if err != nil {
		return nil, err
	}

	in := growth.MultiTickInput{
		StartTick:        u.Rewards.StartTick,
		StartLiquidity:   u.Rewards.StartLiquidity,
		CurrentTick:      currentTick,
		CurrentLiquidity: currentLiquidity,
		Quantities:       u.Rewards.Quantities,
		ExpectedChecksum: u.Rewards.RewardChecksum,
		RewardedTicks:    rewarded,
		LiquidityNet: func(tick int32) (*big.Int, error) {
			return d.Pools.LiquidityNet(pool, tick)
		},
	}
	return g.DistributeMultiTick(in)
}
