// Package amm declares the capability surface the settlement core needs
// from the host concentrated-liquidity pool manager. The pool manager
// itself is out of scope: slot0, the tick bitmap, and flash accounting are
// the host's, and this core only ever touches them through this interface.
package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolID identifies one concentrated-liquidity pool (derived from a pair's
// two assets and tick spacing by the host).
type PoolID [32]byte

// PoolManager is the read/write surface the core drives a pool through. All
// methods operate on a pool already known to the host; resolving a pair to
// a PoolID is the caller's job (see the bundletables package).
type PoolManager interface {
	// Assets returns the pool's two underlying assets, asset0 < asset1.
	Assets(pool PoolID) (asset0, asset1 common.Address, err error)

	CurrentTick(pool PoolID) (int32, error)
	CurrentLiquidity(pool PoolID) (*uint256.Int, error)

	// LiquidityNet returns the signed net-liquidity delta recorded at tick;
	// crossing the tick upward adds it, downward subtracts it.
	LiquidityNet(pool PoolID, tick int32) (*big.Int, error)

	// InitializedTicksBetween returns every initialized tick between from
	// and to (exclusive of from, inclusive of to), in the
	// direction of traversal implied by from < to or from > to.
	InitializedTicksBetween(pool PoolID, from, to int32) ([]int32, error)

	// Swap executes an exact-input swap with no price limit beyond the
	// swap's own direction, returning the tick before and after.
	Swap(pool PoolID, zeroForOne bool, amountIn *uint256.Int) (tickBefore, tickAfter int32, err error)

	// Take pulls amount of asset out of the pool's native accounting into
	// the caller's control (bundle executor phase 4).
	Take(pool PoolID, asset common.Address, amount *uint256.Int) error

	// Settle returns amount of asset into the pool's native accounting
	// (bundle executor phase 8).
	Settle(pool PoolID, asset common.Address, amount *uint256.Int) error

	// PositionLiquidity returns the liquidity currently deposited in a
	// position, used by the position ledger to compute add/remove deltas.
	PositionLiquidity(pool PoolID, owner common.Address, lower, upper int32, salt [32]byte) (*uint256.Int, error)
}

// Accounting is the host's singleton flash-accounting ledger: assets move
// in and out of it independent of any one pool, the way a bundle's take/save
// phases touch whichever assets its asset list names. This is kept separate
// from PoolManager because it isn't addressed by PoolID.
type Accounting interface {
	// TakeAsset pulls amount of asset out of host accounting into the
	// caller's control (bundle executor phase 4).
	TakeAsset(asset common.Address, amount *uint256.Int) error

	// SettleAsset returns amount of asset into host accounting (bundle
	// executor phase 8).
	SettleAsset(asset common.Address, amount *uint256.Int) error
}
