// Package delta implements the per-bundle delta tracker: a transient signed
// accumulator per asset that every settlement step debits or credits, and
// that must net to zero for every touched asset by the time the bundle
// commits.
package delta

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/apperr"
)

// Tracker accumulates signed per-asset deltas for one bundle. It is not
// safe for concurrent use; a bundle executes single-threaded.
type Tracker struct {
	balances map[common.Address]*big.Int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{balances: make(map[common.Address]*big.Int)}
}

func (t *Tracker) get(asset common.Address) *big.Int {
	b, ok := t.balances[asset]
	if !ok {
		b = new(big.Int)
		t.balances[asset] = b
	}
	return b
}

// Add credits amount (an incoming or pool-debited quantity) to asset's
// delta.
func (t *Tracker) Add(asset common.Address, amount *uint256.Int) {
	b := t.get(asset)
	b.Add(b, amount.ToBig())
}

// Sub debits amount from asset's delta and returns the resulting balance.
func (t *Tracker) Sub(asset common.Address, amount *uint256.Int) *big.Int {
	b := t.get(asset)
	b.Sub(b, amount.ToBig())
	return b
}

// Balance returns the current signed delta for asset (zero if untouched).
func (t *Tracker) Balance(asset common.Address) *big.Int {
	return new(big.Int).Set(t.get(asset))
}

// Assets returns every asset the tracker has touched, in no particular
// order.
func (t *Tracker) Assets() []common.Address {
	out := make([]common.Address, 0, len(t.balances))
	for a := range t.balances {
		out = append(out, a)
	}
	return out
}

// Settle subtracts save+settle from asset's delta and requires the result
// to be exactly zero; this is the bundle-commit check run once per listed
// asset (§4.9 step 8 in the executor's phase ordering).
func (t *Tracker) Settle(asset common.Address, save, settle *uint256.Int) error {
	total := new(big.Int).Add(save.ToBig(), settle.ToBig())
	b := t.get(asset)
	b.Sub(b, total)
	if b.Sign() != 0 {
		return &apperr.BundleDeltaUnresolvedError{Asset: asset}
	}
	return nil
}
