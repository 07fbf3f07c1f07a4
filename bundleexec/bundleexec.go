// Package bundleexec implements the bundle executor: the top-level
// orchestration of execute(payload) through the nine phases of §4.9 —
// authentication and the block lock, decode and validate the asset/pair
// tables, take, pool updates through the swap driver, top-of-block and user
// orders through the order validator, and finally save/settle with the fee
// commitment log.
package bundleexec

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/angstrom-labs/angstrom-core/amm"
	"github.com/angstrom-labs/angstrom-core/auth"
	"github.com/angstrom-labs/angstrom-core/bundletables"
	"github.com/angstrom-labs/angstrom-core/configstore"
	"github.com/angstrom-labs/angstrom-core/delta"
	"github.com/angstrom-labs/angstrom-core/order"
	"github.com/angstrom-labs/angstrom-core/pade"
	"github.com/angstrom-labs/angstrom-core/pkg/util"
	"github.com/angstrom-labs/angstrom-core/swap"
)

// Executor wires together every component a bundle execution touches.
type Executor struct {
	Auth       *auth.Auth
	Config     *configstore.Store
	Accounting amm.Accounting
	Swap       *swap.Driver
	Orders     *order.Validator
	Clock      util.Clock
	Log        *zap.Logger

	// DecodeBudget bounds the PADE decode step count for one payload; the
	// host supplies this based on its own gas/resource accounting.
	DecodeBudget uint64
}

// Result is what a successful Execute returns: a correlation id for logs
// and persistence, plus the fee-commitment digest that was emitted as the
// bundle's anonymous log topic.
type Result struct {
	ExecutionID uuid.UUID
	FeeDigest   [32]byte
}

// Execute runs one bundle payload through all nine phases, atomically:
// any error here means nothing in tracker, pools, or accounting should be
// treated as committed by the caller (the host transaction reverts).
func (e *Executor) Execute(caller common.Address, block uint64, payload []byte) (*Result, error) {
	bundle, err := pade.DecodeBundle(payload, pade.NewBudget(e.DecodeBudget))
	if err != nil {
		return nil, err
	}
	return e.executeBundle(caller, block, bundle)
}

// executeBundle runs phases 1, 3 (minus decode, already done by Execute)
// through 9 against an already-decoded bundle; split out from Execute so
// tests can drive it directly without hand-encoding PADE payloads.
func (e *Executor) executeBundle(caller common.Address, block uint64, bundle *pade.Bundle) (*Result, error) {
	execID := uuid.New()
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("executionId", execID.String()), zap.Uint64("block", block))

	// Phase 1: authentication and the per-block lock.
	if err := e.Auth.RequireOperator(caller); err != nil {
		return nil, err
	}
	if err := e.Auth.AcquireBlockLock(block); err != nil {
		return nil, err
	}

	// Phase 2: acquire AMM execution capability. Our abstraction has no
	// separate handshake to perform here — pool mutation during bundle
	// execution already only ever goes through amm.PoolManager, and the
	// unlock gate's job (§4.10) is gating swaps *outside* this pipeline.

	// Phase 3: validate the asset/pair tables (decoding already done).
	assets, err := bundletables.NewAssets(bundle.Assets)
	if err != nil {
		return nil, err
	}
	pairs, err := bundletables.NewPairs(bundle.Pairs, assets, e.Config)
	if err != nil {
		return nil, err
	}

	tracker := delta.New()

	// Phase 4: take.
	for _, a := range bundle.Assets {
		if a.Take == nil || a.Take.IsZero() {
			continue
		}
		addr := common.Address(a.Address)
		if err := e.Accounting.TakeAsset(addr, a.Take); err != nil {
			return nil, err
		}
		tracker.Add(addr, a.Take)
	}

	// Phase 5: pool updates through the swap driver.
	for _, u := range bundle.PoolUpdates {
		pair, err := pairs.At(u.PairIndex)
		if err != nil {
			return nil, err
		}
		if err := e.Swap.Run(u, pair, tracker); err != nil {
			return nil, err
		}
	}

	// Phase 6: top-of-block orders. gas-used-asset0 funds the save bucket
	// of asset0 (operator fee), so it is accumulated here rather than run
	// through the delta tracker.
	extraSave := make(map[common.Address]*uint256.Int)
	for _, t := range bundle.TopOfBlockOrders {
		pair, err := pairs.At(t.PairIndex)
		if err != nil {
			return nil, err
		}
		if err := e.Orders.ValidateTopOfBlock(t, pair, tracker); err != nil {
			return nil, err
		}
		if t.GasUsedAsset0 != nil && !t.GasUsedAsset0.IsZero() {
			addExtraSave(extraSave, pair.Asset0, t.GasUsedAsset0)
		}
	}

	// Phase 7: user orders.
	executed := order.NewExecutedSet()
	now := uint64(e.Clock.Now().Unix())
	for _, o := range bundle.UserOrders {
		pair, err := pairs.At(o.PairIndex)
		if err != nil {
			return nil, err
		}
		if err := e.Orders.Validate(o, pair, tracker, executed, now, block); err != nil {
			return nil, err
		}
	}

	// Phase 8: save & settle. Every asset must net exactly zero once its
	// save and settle amounts are subtracted; settle units return to the
	// AMM's native accounting. Assets are visited in asset-list order, the
	// same order the fee-commitment buffer is built in.
	buf := make([]byte, 0, len(bundle.Assets)*36)
	for _, a := range bundle.Assets {
		addr := common.Address(a.Address)
		save := zeroIfNil(a.Save)
		if extra, ok := extraSave[addr]; ok {
			save = new(uint256.Int).Add(save, extra)
		}
		settle := zeroIfNil(a.Settle)

		if err := tracker.Settle(addr, save, settle); err != nil {
			return nil, err
		}
		if !settle.IsZero() {
			if err := e.Accounting.SettleAsset(addr, settle); err != nil {
				return nil, err
			}
		}

		var entry [36]byte
		copy(entry[:20], addr[:])
		writeU128BE(entry[20:36], save)
		buf = append(buf, entry[:]...)
	}

	// Phase 9: the fee-commitment log.
	digest := [32]byte(crypto.Keccak256Hash(buf))
	log.Info("bundle executed", zap.String("feeDigest", common.Bytes2Hex(digest[:])))

	return &Result{ExecutionID: execID, FeeDigest: digest}, nil
}

// AttestEmptyBlock is the separate entry point for marking a block used
// without executing a bundle against it.
func (e *Executor) AttestEmptyBlock(block uint64, operator common.Address, r, s [32]byte, v uint8) error {
	return e.Auth.AttestEmptyBlock(block, operator, r, s, v)
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}

func addExtraSave(m map[common.Address]*uint256.Int, asset common.Address, amount *uint256.Int) {
	if cur, ok := m[asset]; ok {
		m[asset] = new(uint256.Int).Add(cur, amount)
		return
	}
	m[asset] = new(uint256.Int).Set(amount)
}

func writeU128BE(dst []byte, v *uint256.Int) {
	if len(dst) != 16 {
		panic("bundleexec: writeU128BE requires a 16-byte destination")
	}
	full := v.Bytes32()
	copy(dst, full[16:32])
}
