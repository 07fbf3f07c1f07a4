// Package internalbalance implements the deposit/withdraw internal-balance
// ledger: a per-(owner, asset) balance that order settlement debits and
// credits directly (use-internal) instead of moving real tokens on every
// fill. Deposit and withdraw are the only entry points that cross the
// internal/external boundary, and both assume exact-transfer tokens (no
// fee-on-transfer support).
package internalbalance

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/apperr"
)

type key struct {
	owner common.Address
	asset common.Address
}

// Tokens moves real tokens across the internal/external boundary for
// deposit and withdraw; the same interface shape as order.Transfers, so a
// single token mover can satisfy both.
type Tokens interface {
	TransferFrom(from, asset common.Address, amount *uint256.Int) error
	TransferTo(to, asset common.Address, amount *uint256.Int) error
}

// Backing persists individual (owner, asset) balances; nil disables
// persistence (tests, dry runs).
type Backing interface {
	LoadBalance(owner, asset common.Address) (*uint256.Int, bool, error)
	SaveBalance(owner, asset common.Address, amount *uint256.Int) error
}

// Ledger tracks internal balances in memory, loading lazily from Backing
// and persisting on every mutation.
type Ledger struct {
	mu       sync.Mutex
	balances map[key]*uint256.Int
	tokens   Tokens
	back     Backing
}

// New creates a Ledger backed by tokens for deposit/withdraw transfers and
// back for persistence (may be nil for an in-memory-only ledger).
func New(tokens Tokens, back Backing) *Ledger {
	return &Ledger{
		balances: make(map[key]*uint256.Int),
		tokens:   tokens,
		back:     back,
	}
}

func (l *Ledger) get(k key) (*uint256.Int, error) {
	if bal, ok := l.balances[k]; ok {
		return bal, nil
	}
	if l.back != nil {
		loaded, ok, err := l.back.LoadBalance(k.owner, k.asset)
		if err != nil {
			return nil, err
		}
		if ok {
			l.balances[k] = loaded
			return loaded, nil
		}
	}
	bal := uint256.NewInt(0)
	l.balances[k] = bal
	return bal, nil
}

func (l *Ledger) save(k key, bal *uint256.Int) error {
	l.balances[k] = bal
	if l.back == nil {
		return nil
	}
	return l.back.SaveBalance(k.owner, k.asset, bal)
}

// Balance returns owner's current internal balance of asset.
func (l *Ledger) Balance(owner, asset common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := l.get(key{owner, asset})
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(bal), nil
}

// Debit subtracts amount from owner's internal balance of asset, failing if
// the balance would go negative. Satisfies order.Balances.
func (l *Ledger) Debit(owner, asset common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key{owner, asset}
	bal, err := l.get(k)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return apperr.ErrArithmeticOverflowUnderflow
	}
	return l.save(k, new(uint256.Int).Sub(bal, amount))
}

// Credit adds amount to owner's internal balance of asset. Satisfies
// order.Balances.
func (l *Ledger) Credit(owner, asset common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key{owner, asset}
	bal, err := l.get(k)
	if err != nil {
		return err
	}
	return l.save(k, new(uint256.Int).Add(bal, amount))
}

// Deposit pulls amount of asset from the caller and credits it to
// recipient's internal balance.
func (l *Ledger) Deposit(caller, recipient, asset common.Address, amount *uint256.Int) error {
	if err := l.tokens.TransferFrom(caller, asset, amount); err != nil {
		return err
	}
	return l.Credit(recipient, asset, amount)
}

// Withdraw debits amount of asset from caller's internal balance and
// transfers it out to recipient.
func (l *Ledger) Withdraw(caller, recipient, asset common.Address, amount *uint256.Int) error {
	if err := l.Debit(caller, asset, amount); err != nil {
		return err
	}
	return l.tokens.TransferTo(recipient, asset, amount)
}
