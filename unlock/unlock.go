// Package unlock implements the pre-swap unlock gate: external swaps
// against a managed pool are only allowed once their block is attested,
// either by a bundle having already run for it or by an operator-signed
// empty-block attestation carried alongside the swap itself. Either way the
// applied fee overrides the pool's dynamic fee with its configured
// unlocked-fee.
package unlock

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/auth"
	"github.com/angstrom-labs/angstrom-core/configstore"
)

// unlockDataLen is the wire size of (operator-address, signature):
// 20-byte address + 32-byte r + 32-byte s + 1-byte v.
const unlockDataLen = 20 + 32 + 32 + 1

// Gate wires the operator/block-lock state to the config store's
// unlocked-fee side table.
type Gate struct {
	Auth   *auth.Auth
	Config *configstore.Store
}

// PreSwapHook runs before an external swap against pairKey in block: if the
// block isn't already attested, unlockData must carry a valid empty-block
// attestation to attest it now. Either way it returns the fee to apply,
// which is always the pair's unlocked-fee, never the bundle-fee.
func (g *Gate) PreSwapHook(pairKey configstore.PairKey, block uint64, unlockData []byte) (fee uint32, err error) {
	if !g.Auth.IsBlockAttested(block) {
		operator, r, s, v, err := parseUnlockData(unlockData)
		if err != nil {
			return 0, err
		}
		if err := g.Auth.AttestEmptyBlock(block, common.Address(operator), r, s, v); err != nil {
			return 0, err
		}
	}

	fee, ok := g.Config.UnlockedFee(pairKey)
	if !ok {
		return 0, apperr.ErrUnlockedFeeNotSet
	}
	return fee, nil
}

func parseUnlockData(data []byte) (operator [20]byte, r, s [32]byte, v uint8, err error) {
	if len(data) < unlockDataLen {
		return operator, r, s, v, apperr.ErrUnlockDataTooShort
	}
	copy(operator[:], data[0:20])
	copy(r[:], data[20:52])
	copy(s[:], data[52:84])
	v = data[84]
	return operator, r, s, v, nil
}
