// Package position implements the per-position reward ledger: a single
// last-observed-growth-inside snapshot keyed by (pool, owner, range, salt),
// updated on every liquidity add or remove against the growth accumulator's
// current growth-inside value.
package position

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/amm"
	"github.com/angstrom-labs/angstrom-core/growth"
	"github.com/angstrom-labs/angstrom-core/xmath"
)

// Key identifies one position.
type Key struct {
	Pool  amm.PoolID
	Owner common.Address
	Lower int32
	Upper int32
	Salt  [32]byte
}

// Bytes returns the deterministic encoding used to derive the position's
// storage key, matching the host AMM's own key derivation.
func (k Key) Bytes() []byte {
	buf := make([]byte, 0, 32+20+4+4+32)
	buf = append(buf, k.Pool[:]...)
	buf = append(buf, k.Owner[:]...)
	buf = append(buf, be4(k.Lower)...)
	buf = append(buf, be4(k.Upper)...)
	buf = append(buf, k.Salt[:]...)
	return buf
}

// Hash returns keccak256(Bytes()), the storage key the AMM itself would use.
func (k Key) Hash() [32]byte {
	return [32]byte(crypto.Keccak256Hash(k.Bytes()))
}

func be4(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

// Entry is one position's ledger row.
type Entry struct {
	LastGrowthInside *uint256.Int
}

// Ledger stores one Entry per Key. It is not concurrency-safe on its own;
// callers serialize access the same way the rest of one bundle's execution
// is serialized.
type Ledger struct {
	entries map[Key]*Entry
	back    Backing
}

// Backing persists ledger entries; nil disables persistence (tests).
type Backing interface {
	SavePosition(key Key, e Entry) error
	LoadPosition(key Key) (Entry, bool, error)
}

// New creates an empty ledger.
func New(back Backing) *Ledger {
	return &Ledger{entries: make(map[Key]*Entry), back: back}
}

func (l *Ledger) get(key Key) (*Entry, error) {
	if e, ok := l.entries[key]; ok {
		return e, nil
	}
	if l.back != nil {
		if e, ok, err := l.back.LoadPosition(key); err != nil {
			return nil, err
		} else if ok {
			l.entries[key] = &e
			return &e, nil
		}
	}
	e := &Entry{LastGrowthInside: uint256.NewInt(0)}
	l.entries[key] = e
	return e, nil
}

func (l *Ledger) save(key Key, e *Entry) error {
	l.entries[key] = e
	if l.back != nil {
		return l.back.SavePosition(key, *e)
	}
	return nil
}

// Lookup returns a position's last-observed-growth-inside snapshot without
// mutating settlement state; the introspection API uses this for read-only
// queries.
func (l *Ledger) Lookup(key Key) (*uint256.Int, error) {
	e, err := l.get(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(e.LastGrowthInside), nil
}

// OnAddLiquidity runs the before-add hook: it reconciles the position's
// owed-reward snapshot against the new liquidity total, then — if lower or
// upper is being newly initialized at or below the current tick — seeds
// that tick's growth-outside to the pool's current global growth, matching
// the AMM's own fee-growth-outside convention for a freshly initialized
// tick.
//
// previousLiquidity and newLiquidity are u128 values widened to *uint256.Int
// by the caller (the AMM reports liquidity, not deltas, across this hook).
func (l *Ledger) OnAddLiquidity(pool *growth.Pool, key Key, previousLiquidity, newLiquidity *uint256.Int, lowerInitialized, upperInitialized bool, currentTick int32) error {
	e, err := l.get(key)
	if err != nil {
		return err
	}

	growthInside := pool.GrowthInside(key.Lower, key.Upper, currentTick)

	if previousLiquidity.IsZero() {
		e.LastGrowthInside = growthInside
	} else {
		owed := new(uint256.Int).Sub(growthInside, e.LastGrowthInside)
		scaled, err := xmath.MulDivDown(owed, previousLiquidity, newLiquidity)
		if err != nil {
			return err
		}
		e.LastGrowthInside = new(uint256.Int).Sub(growthInside, scaled)
	}

	if lowerInitialized && key.Lower <= currentTick {
		pool.GrowthOutside[key.Lower] = new(uint256.Int).Set(pool.GlobalGrowth)
	}
	if upperInitialized && key.Upper <= currentTick {
		pool.GrowthOutside[key.Upper] = new(uint256.Int).Set(pool.GlobalGrowth)
	}

	return l.save(key, e)
}

// OnRemoveLiquidity runs the before-remove hook: it computes the reward
// owed since the last snapshot (an asset0 amount) and advances the snapshot
// to the current growth-inside value. It does not settle that amount
// through any delta tracker; it returns it, and the caller credits it to
// the owner (internal balance or external transfer) exactly as it would any
// other settlement leg.
//
// Donating to a position while positionLiquidity is zero is the documented
// no-reward case: owed comes out zero because fullMulX128(anything, 0) = 0,
// not because of any special-cased branch here.
func (l *Ledger) OnRemoveLiquidity(pool *growth.Pool, key Key, positionLiquidity *uint256.Int, currentTick int32) (*uint256.Int, error) {
	e, err := l.get(key)
	if err != nil {
		return nil, err
	}

	growthInside := pool.GrowthInside(key.Lower, key.Upper, currentTick)
	delta := new(uint256.Int).Sub(growthInside, e.LastGrowthInside)
	owed := xmath.FullMulX128(delta, positionLiquidity)

	e.LastGrowthInside = growthInside
	if err := l.save(key, e); err != nil {
		return nil, err
	}
	return owed, nil
}
