// Package auth implements the operator/controller access model: a single
// controller address with exclusive rights over the operator allowlist and
// pool configuration, an operator allowlist gating bundle execution, a
// one-bundle-per-block lock, and the empty-block attestation path that lets
// an operator unlock external AMM use for a block without submitting a
// bundle.
package auth

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/pade"
	"github.com/angstrom-labs/angstrom-core/sig"
)

// FeeBucket is the internal-balance owner pull-fee debits before crediting
// the controller. No code in this module credits it: the bundle executor
// folds top-of-block gas-used-asset0 into asset0's save amount instead.
var FeeBucket = common.Address{}

// State is the persisted shape of an Auth: controller, operator allowlist,
// and the last block a bundle (or an empty-block attestation) was accepted
// for.
type State struct {
	Controller       common.Address
	Operators        map[common.Address]bool
	LastUpdatedBlock uint64
}

// Backing persists Auth state across restarts; Auth calls it on every
// mutation so callers that only want in-memory state (tests) can pass nil.
type Backing interface {
	LoadAuth() (State, bool, error)
	SaveAuth(State) error
}

// FeeBalances is the subset of internal-balance accounting pull-fee needs:
// debit the fee bucket, credit the controller.
type FeeBalances interface {
	Debit(owner, asset common.Address, amount *uint256.Int) error
	Credit(owner, asset common.Address, amount *uint256.Int) error
}

// Auth tracks the operator/controller access model in memory, persisting
// through Backing when one is supplied.
type Auth struct {
	mu    sync.Mutex
	state State
	back  Backing
}

// New creates an Auth, loading persisted state from back if present;
// otherwise it starts with controller as the sole controller and an empty
// operator set.
func New(controller common.Address, back Backing) (*Auth, error) {
	a := &Auth{back: back}
	if back != nil {
		loaded, ok, err := back.LoadAuth()
		if err != nil {
			return nil, err
		}
		if ok {
			if loaded.Operators == nil {
				loaded.Operators = make(map[common.Address]bool)
			}
			a.state = loaded
			return a, nil
		}
	}
	a.state = State{Controller: controller, Operators: make(map[common.Address]bool)}
	if back != nil {
		if err := back.SaveAuth(a.state); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Auth) persist() error {
	if a.back == nil {
		return nil
	}
	return a.back.SaveAuth(a.state)
}

// Controller returns the current controller address.
func (a *Auth) Controller() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Controller
}

// IsOperator reports whether addr is in the operator allowlist.
func (a *Auth) IsOperator(addr common.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Operators[addr]
}

// RequireController returns ErrNotController unless caller is the current
// controller.
func (a *Auth) RequireController(caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requireControllerLocked(caller)
}

// requireControllerLocked is RequireController's check, reused by mutators
// that already hold a.mu so they don't re-lock.
func (a *Auth) requireControllerLocked(caller common.Address) error {
	if caller != a.state.Controller {
		return apperr.ErrNotController
	}
	return nil
}

// RequireOperator returns ErrNotOperator unless caller is an active
// operator.
func (a *Auth) RequireOperator(caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.Operators[caller] {
		return apperr.ErrNotOperator
	}
	return nil
}

// SetController reassigns the controller; single free assignment, no
// timelock (spec is silent on a two-step handoff, so the simplest reading
// is taken).
func (a *Auth) SetController(caller, next common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireControllerLocked(caller); err != nil {
		return err
	}
	a.state.Controller = next
	return a.persist()
}

// ToggleOperators flips membership for every address in addrs: an address
// already in the allowlist is removed, one that isn't is added.
func (a *Auth) ToggleOperators(caller common.Address, addrs []common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireControllerLocked(caller); err != nil {
		return err
	}
	for _, addr := range addrs {
		if a.state.Operators[addr] {
			delete(a.state.Operators, addr)
		} else {
			a.state.Operators[addr] = true
		}
	}
	return a.persist()
}

// PullFee moves amount of asset from the protocol fee bucket to the
// controller.
func (a *Auth) PullFee(caller common.Address, bal FeeBalances, asset common.Address, amount *uint256.Int) error {
	if err := a.RequireController(caller); err != nil {
		return err
	}
	controller := a.Controller()
	if err := bal.Debit(FeeBucket, asset, amount); err != nil {
		return err
	}
	return bal.Credit(controller, asset, amount)
}

// IsBlockAttested reports whether block already holds the one-per-block
// lock, whether acquired by a bundle execution or by an empty-block
// attestation. The unlock gate consults this before letting an external
// swap through.
func (a *Auth) IsBlockAttested(block uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.LastUpdatedBlock == block
}

// AcquireBlockLock marks block as the current bundle's block, failing with
// ErrOnlyOncePerBlock if a bundle (or empty-block attestation) has already
// been accepted for it.
func (a *Auth) AcquireBlockLock(block uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.LastUpdatedBlock == block {
		return apperr.ErrOnlyOncePerBlock
	}
	a.state.LastUpdatedBlock = block
	return a.persist()
}

// AttestEmptyBlock verifies a signed attestation that block carried no
// bundle and, if valid, acquires the block lock without executing one —
// this is what lets an external swapper use the AMM through the unlock gate
// on a block the operator chose not to bundle.
func (a *Auth) AttestEmptyBlock(block uint64, operator common.Address, r, s [32]byte, v uint8) error {
	if err := a.RequireOperator(operator); err != nil {
		return err
	}
	digest := sig.HashAttestation(block)
	if err := sig.Verify(nil, digest, uint8(pade.SignatureECDSA), operator, r, s, v, nil); err != nil {
		return err
	}
	return a.AcquireBlockLock(block)
}
