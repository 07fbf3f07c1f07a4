// Package hook implements the composable-order callout: a synchronous
// invocation of a hook contract during order validation that must answer
// with a fixed magic value or fail the order.
package hook

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/sig"
)

// Composer invokes a hook contract's compose(signer, payload) entry point.
// There is no re-entrancy protection beyond the bundle holding the AMM's
// unlock; a hook that reverts propagates as an error here and fails the
// containing order.
type Composer interface {
	Compose(hookAddress common.Address, signer common.Address, payload []byte) (magic [4]byte, err error)
}

// Invoke calls the hook and checks its return against the required magic
// constant. Callers run this synchronously after signature/nonce validation
// and before settlement, per order processing.
func Invoke(c Composer, hookAddress, signer common.Address, payload []byte) error {
	magic, err := c.Compose(hookAddress, signer, payload)
	if err != nil {
		return err
	}
	if magic != sig.HookReturnMagic {
		return apperr.ErrInvalidHookReturn
	}
	return nil
}
