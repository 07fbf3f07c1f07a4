// Package order implements the order validator: signature recovery, nonce
// and deadline/block checks, quantity/price computation against a pair's
// fee-reduced clearing price, and the settlement legs each order applies to
// the bundle's delta tracker.
package order

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/bundletables"
	"github.com/angstrom-labs/angstrom-core/delta"
	"github.com/angstrom-labs/angstrom-core/hook"
	"github.com/angstrom-labs/angstrom-core/nonce"
	"github.com/angstrom-labs/angstrom-core/pade"
	"github.com/angstrom-labs/angstrom-core/sig"
	"github.com/angstrom-labs/angstrom-core/xmath"
)

// Balances is the internal-balance ledger orders draw from or credit to
// when use-internal is set; it is the same store the deposit/withdraw entry
// points manage.
type Balances interface {
	Debit(owner common.Address, asset common.Address, amount *uint256.Int) error
	Credit(owner common.Address, asset common.Address, amount *uint256.Int) error
}

// Transfers moves real tokens when use-internal is not set.
type Transfers interface {
	TransferFrom(from, asset common.Address, amount *uint256.Int) error
	TransferTo(to, asset common.Address, amount *uint256.Int) error
}

// ExecutedSet is the transient (signer, order-hash) set that blocks a flash
// order from executing twice within the same bundle. Create one fresh per
// bundle.
type ExecutedSet struct {
	seen map[[52]byte]bool
}

// NewExecutedSet creates an empty set.
func NewExecutedSet() *ExecutedSet {
	return &ExecutedSet{seen: make(map[[52]byte]bool)}
}

func executedKey(signer common.Address, orderHash [32]byte) [52]byte {
	var k [52]byte
	copy(k[:20], signer[:])
	copy(k[20:], orderHash[:])
	return k
}

// markOnce records (signer, orderHash); returns apperr.ErrOrderAlreadyExecuted
// if already present.
func (e *ExecutedSet) markOnce(signer common.Address, orderHash [32]byte) error {
	k := executedKey(signer, orderHash)
	if e.seen[k] {
		return apperr.ErrOrderAlreadyExecuted
	}
	e.seen[k] = true
	return nil
}

// Validator ties together signature verification, nonce bookkeeping, and
// hook invocation for one bundle's worth of orders.
type Validator struct {
	Domain    sig.Domain
	Nonces    *nonce.Store
	Verifier  sig.ContractVerifier
	Composer  hook.Composer
	Balances  Balances
	Transfers Transfers
}

func hookPayloadHash(o pade.UserOrder) [32]byte {
	if !o.HasHook {
		return [32]byte{}
	}
	return [32]byte(crypto.Keccak256Hash(o.HookPayload))
}

func variantFor(o pade.UserOrder) sig.OrderVariant {
	switch {
	case o.Fill == pade.FillPartial && o.Standing == pade.OrderStanding:
		return sig.PartialStanding
	case o.Fill == pade.FillExact && o.Standing == pade.OrderStanding:
		return sig.ExactStanding
	case o.Fill == pade.FillPartial && o.Standing == pade.OrderFlash:
		return sig.PartialFlash
	default:
		return sig.ExactFlash
	}
}

func orderMessage(o pade.UserOrder) sig.OrderMessage {
	amountOrMinIn := o.MinIn
	if o.Fill == pade.FillExact {
		amountOrMinIn = o.Amount
	}
	hookAddr := common.Address{}
	if o.HasHook {
		hookAddr = common.Address(o.HookAddress)
	}
	recipient := common.Address{}
	if o.HasRecipient {
		recipient = common.Address(o.Recipient)
	}
	return sig.OrderMessage{
		ZeroForOne:      o.ZeroForOne,
		PairIndex:       o.PairIndex,
		MinPrice:        bigOrZero(o.MinPrice),
		Recipient:       recipient,
		HookAddress:     hookAddr,
		HookPayloadHash: hookPayloadHash(o),
		ExtraFeeCap:     bigOrZero(o.ExtraFeeCap),
		ExtraFee:        bigOrZero(o.ExtraFee),
		AmountOrMinIn:   bigOrZero(amountOrMinIn),
		MaxIn:           bigOrZero(o.MaxIn),
		FilledIn:        bigOrZero(o.FilledIn),
		Nonce:           o.Nonce,
		Deadline:        o.Deadline,
		ValidForBlock:   o.ValidForBlock,
	}
}

func bigOrZero(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// Quantities is the resolved input/output pair an order settles.
type Quantities struct {
	AssetIn, AssetOut common.Address
	In, Out           *uint256.Int
}

// quantities computes in/out per §4.7 step 5, using the pair's bundle-fee
// reduced clearing price; extra-fee is always denominated in asset0.
func quantities(o pade.UserOrder, pair bundletables.ResolvedPair, fillAmount *uint256.Int) (Quantities, error) {
	extraFee := o.ExtraFee
	if extraFee == nil {
		extraFee = uint256.NewInt(0)
	}

	if o.ZeroForOne {
		if o.ExactIn {
			net := new(uint256.Int).Sub(fillAmount, extraFee)
			pPrime, err := xmath.ApplyFeeMicrobips(pair.Raw.InversePrice0Over1, pair.BundleFeeMicrobips)
			if err != nil {
				return Quantities{}, err
			}
			out, err := xmath.RayMulDown(net, pPrime)
			if err != nil {
				return Quantities{}, err
			}
			return Quantities{AssetIn: pair.Asset0, AssetOut: pair.Asset1, In: fillAmount, Out: out}, nil
		}
		pPrime, err := xmath.ApplyFeeMicrobips(pair.Raw.Price1Over0, pair.BundleFeeMicrobips)
		if err != nil {
			return Quantities{}, err
		}
		inRaw, err := xmath.RayMulUp(fillAmount, pPrime)
		if err != nil {
			return Quantities{}, err
		}
		in := new(uint256.Int).Add(inRaw, extraFee)
		return Quantities{AssetIn: pair.Asset0, AssetOut: pair.Asset1, In: in, Out: fillAmount}, nil
	}

	// one-for-zero
	if o.ExactIn {
		pPrime, err := xmath.ApplyFeeMicrobips(pair.Raw.Price1Over0, pair.BundleFeeMicrobips)
		if err != nil {
			return Quantities{}, err
		}
		outRaw, err := xmath.RayMulDown(fillAmount, pPrime)
		if err != nil {
			return Quantities{}, err
		}
		out := new(uint256.Int).Sub(outRaw, extraFee)
		return Quantities{AssetIn: pair.Asset1, AssetOut: pair.Asset0, In: fillAmount, Out: out}, nil
	}
	outRaw := new(uint256.Int).Add(fillAmount, extraFee)
	pPrime, err := xmath.ApplyFeeMicrobips(pair.Raw.InversePrice0Over1, pair.BundleFeeMicrobips)
	if err != nil {
		return Quantities{}, err
	}
	in, err := xmath.RayMulUp(outRaw, pPrime)
	if err != nil {
		return Quantities{}, err
	}
	return Quantities{AssetIn: pair.Asset1, AssetOut: pair.Asset0, In: in, Out: fillAmount}, nil
}

// checkMinPrice enforces out/in >= minPrice without dividing:
// out * RAY >= minPrice * in.
func checkMinPrice(q Quantities, minPrice *uint256.Int) error {
	if minPrice == nil || minPrice.IsZero() {
		return nil
	}
	lhs := new(big.Int).Mul(q.Out.ToBig(), xmath.RAY.ToBig())
	rhs := new(big.Int).Mul(minPrice.ToBig(), q.In.ToBig())
	if lhs.Cmp(rhs) < 0 {
		return apperr.ErrPriceLimitViolated
	}
	return nil
}

// Validate runs one user order through the full §4.7 pipeline, mutating
// tracker, nonces, and balances/transfers as a side effect. now and
// currentBlock are the executor's view of wall-clock time and block
// identity.
func (v *Validator) Validate(o pade.UserOrder, pair bundletables.ResolvedPair, tracker *delta.Tracker, executed *ExecutedSet, now, currentBlock uint64) error {
	msg := orderMessage(o)
	variant := variantFor(o)
	digest, err := sig.HashOrder(v.Domain, variant, msg)
	if err != nil {
		return err
	}

	signer, err := sig.Resolve(v.Verifier, digest, uint8(o.Signature.Kind), o.Signature.R, o.Signature.S, o.Signature.V, common.Address(o.Signature.SignerAddress), o.Signature.Payload)
	if err != nil {
		return err
	}

	if o.Standing == pade.OrderStanding {
		if now > o.Deadline {
			return apperr.ErrExpired
		}
		if err := v.Nonces.MarkUsed(signer, o.Nonce); err != nil {
			return err
		}
	} else {
		if o.ValidForBlock != currentBlock {
			return apperr.ErrWrongBlock
		}
		if err := executed.markOnce(signer, digest); err != nil {
			return err
		}
	}

	// ErrGasAboveMax is reused here for the extra-fee-cap check; the error
	// taxonomy has no dedicated "extra fee above cap" sentinel and the two
	// checks are both "a declared spending ceiling was exceeded".
	if o.ExtraFeeCap != nil && o.ExtraFee != nil && o.ExtraFee.Gt(o.ExtraFeeCap) {
		return apperr.ErrGasAboveMax
	}

	fillAmount := o.Amount
	if o.Fill == pade.FillPartial {
		fillAmount = o.FilledIn
		if fillAmount.Lt(o.MinIn) {
			return apperr.ErrFillingTooLittle
		}
		if fillAmount.Gt(o.MaxIn) {
			return apperr.ErrFillingTooMuch
		}
	}

	q, err := quantities(o, pair, fillAmount)
	if err != nil {
		return err
	}
	if err := checkMinPrice(q, o.MinPrice); err != nil {
		return err
	}

	if o.HasHook {
		if err := hook.Invoke(v.Composer, common.Address(o.HookAddress), signer, o.HookPayload); err != nil {
			return err
		}
	}

	recipient := signer
	if o.HasRecipient {
		recipient = common.Address(o.Recipient)
	}

	tracker.Add(q.AssetIn, q.In)
	if o.UseInternal {
		if err := v.Balances.Debit(signer, q.AssetIn, q.In); err != nil {
			return err
		}
	} else if err := v.Transfers.TransferFrom(signer, q.AssetIn, q.In); err != nil {
		return err
	}

	tracker.Sub(q.AssetOut, q.Out)
	if o.UseInternal {
		if err := v.Balances.Credit(recipient, q.AssetOut, q.Out); err != nil {
			return err
		}
	} else if err := v.Transfers.TransferTo(recipient, q.AssetOut, q.Out); err != nil {
		return err
	}

	return nil
}

// ValidateTopOfBlock runs a single top-of-block order through signature
// verification, a single pair binding, the gas-cap check, and settlement;
// there is no nonce or deadline axis for this order type.
func (v *Validator) ValidateTopOfBlock(o pade.TopOfBlockOrder, pair bundletables.ResolvedPair, tracker *delta.Tracker) error {
	if o.GasUsedAsset0.Gt(o.MaxGasAsset0) {
		return apperr.ErrGasAboveMax
	}

	msg := sig.TopOfBlockMessage{
		UseInternal:   o.UseInternal,
		ZeroForOne:    o.ZeroForOne,
		QuantityIn:    bigOrZero(o.QuantityIn),
		QuantityOut:   bigOrZero(o.QuantityOut),
		MaxGasAsset0:  bigOrZero(o.MaxGasAsset0),
		GasUsedAsset0: bigOrZero(o.GasUsedAsset0),
		PairIndex:     o.PairIndex,
		Recipient:     addrOrZero(o.HasRecipient, o.Recipient),
	}
	digest, err := sig.HashTopOfBlock(v.Domain, msg)
	if err != nil {
		return err
	}
	signer, err := sig.Resolve(v.Verifier, digest, uint8(o.Signature.Kind), o.Signature.R, o.Signature.S, o.Signature.V, common.Address(o.Signature.SignerAddress), o.Signature.Payload)
	if err != nil {
		return err
	}

	assetIn, assetOut := pair.Asset0, pair.Asset1
	if !o.ZeroForOne {
		assetIn, assetOut = pair.Asset1, pair.Asset0
	}

	recipient := signer
	if o.HasRecipient {
		recipient = common.Address(o.Recipient)
	}

	tracker.Add(assetIn, o.QuantityIn)
	if o.UseInternal {
		if err := v.Balances.Debit(signer, assetIn, o.QuantityIn); err != nil {
			return err
		}
	} else if err := v.Transfers.TransferFrom(signer, assetIn, o.QuantityIn); err != nil {
		return err
	}

	tracker.Sub(assetOut, o.QuantityOut)
	if o.UseInternal {
		if err := v.Balances.Credit(recipient, assetOut, o.QuantityOut); err != nil {
			return err
		}
	} else if err := v.Transfers.TransferTo(recipient, assetOut, o.QuantityOut); err != nil {
		return err
	}

	// gas-used-asset0 funds the save bucket of asset0; callers add it to the
	// asset's save amount, not to the delta tracker (it never flows through
	// the pool).
	return nil
}

func addrOrZero(has bool, a [20]byte) common.Address {
	if !has {
		return common.Address{}
	}
	return common.Address(a)
}
