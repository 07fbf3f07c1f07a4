package pade

import "github.com/angstrom-labs/angstrom-core/apperr"

// Budget bounds the total amount of decode work performed for one bundle.
// A malformed payload that recursively encodes zero-length lists inside a
// padded region can otherwise force pathological loop depth; bounding
// per-decode work with a step budget supplied by the host caps the damage.
// Every list element consumes one step; primitive reads are not charged.
type Budget struct {
	remaining uint64
}

// NewBudget creates a budget with n steps available.
func NewBudget(n uint64) *Budget {
	return &Budget{remaining: n}
}

// Consume charges n steps against the budget, failing if it would go
// negative.
func (b *Budget) Consume(n uint64) error {
	if b.remaining < n {
		return apperr.ErrDecodeStepBudgetExceeded
	}
	b.remaining -= n
	return nil
}
