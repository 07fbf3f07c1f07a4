package pade

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/reader"
	"github.com/angstrom-labs/angstrom-core/xmath"
)

// DecodeBundle decodes a full bundle payload: assets, pairs, pool updates,
// top-of-block orders, user orders, in that order, with no outer variant
// bitmap. Every sub-region must be fully consumed; budget bounds total
// decode work against pathologically nested inputs.
func DecodeBundle(payload []byte, budget *Budget) (*Bundle, error) {
	r := reader.New(payload)

	assets, err := decodeAssetList(r, budget)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	pairs, err := decodePairList(r, budget)
	if err != nil {
		return nil, fmt.Errorf("pairs: %w", err)
	}
	poolUpdates, err := decodePoolUpdateList(r, budget)
	if err != nil {
		return nil, fmt.Errorf("pool updates: %w", err)
	}
	tobOrders, err := decodeTopOfBlockList(r, budget)
	if err != nil {
		return nil, fmt.Errorf("top-of-block orders: %w", err)
	}
	userOrders, err := decodeUserOrderList(r, budget)
	if err != nil {
		return nil, fmt.Errorf("user orders: %w", err)
	}
	if err := r.RequireAtEnd(); err != nil {
		return nil, err
	}

	return &Bundle{
		Assets:           assets,
		Pairs:            pairs,
		PoolUpdates:      poolUpdates,
		TopOfBlockOrders: tobOrders,
		UserOrders:       userOrders,
	}, nil
}

func decodeAssetList(r *reader.Reader, budget *Budget) ([]Asset, error) {
	sub, err := r.LengthPrefixed()
	if err != nil {
		return nil, err
	}
	var out []Asset
	for !sub.AtEnd() {
		if err := budget.Consume(1); err != nil {
			return nil, err
		}
		a, err := decodeAsset(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, sub.RequireAtEnd()
}

func decodeAsset(r *reader.Reader) (Asset, error) {
	var a Asset
	addr, err := r.Address()
	if err != nil {
		return a, err
	}
	save, err := r.U128()
	if err != nil {
		return a, err
	}
	take, err := r.U128()
	if err != nil {
		return a, err
	}
	settle, err := r.U128()
	if err != nil {
		return a, err
	}
	a.Address, a.Save, a.Take, a.Settle = addr, save, take, settle
	return a, nil
}

func decodePairList(r *reader.Reader, budget *Budget) ([]Pair, error) {
	sub, err := r.LengthPrefixed()
	if err != nil {
		return nil, err
	}
	var out []Pair
	for !sub.AtEnd() {
		if err := budget.Consume(1); err != nil {
			return nil, err
		}
		p, err := decodePair(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, sub.RequireAtEnd()
}

func decodePair(r *reader.Reader) (Pair, error) {
	var p Pair
	i0, err := r.U16()
	if err != nil {
		return p, err
	}
	i1, err := r.U16()
	if err != nil {
		return p, err
	}
	store, err := r.U16()
	if err != nil {
		return p, err
	}
	price, err := r.U256()
	if err != nil {
		return p, err
	}
	inv, err := xmath.InvertRay(price)
	if err != nil {
		return p, fmt.Errorf("invert price: %w", err)
	}
	p.Index0, p.Index1, p.StoreIndex = i0, i1, store
	p.Price1Over0 = price
	p.InversePrice0Over1 = inv
	return p, nil
}

func decodePoolUpdateList(r *reader.Reader, budget *Budget) ([]PoolUpdate, error) {
	sub, err := r.LengthPrefixed()
	if err != nil {
		return nil, err
	}
	var out []PoolUpdate
	for !sub.AtEnd() {
		if err := budget.Consume(1); err != nil {
			return nil, err
		}
		p, err := decodePoolUpdate(sub, budget)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, sub.RequireAtEnd()
}

func decodePoolUpdate(r *reader.Reader, budget *Budget) (PoolUpdate, error) {
	var p PoolUpdate
	bm, err := readVariantBitmap(r, 2)
	if err != nil {
		return p, err
	}
	p.ZeroForOne = bm.nextBool()
	p.CurrentOnly = bm.nextBool()

	pairIndex, err := r.U16()
	if err != nil {
		return p, err
	}
	swapIn, err := r.U128()
	if err != nil {
		return p, err
	}
	p.PairIndex, p.SwapInQuantity = pairIndex, swapIn

	if p.CurrentOnly {
		amount, err := r.U128()
		if err != nil {
			return p, err
		}
		expLiq, err := r.U128()
		if err != nil {
			return p, err
		}
		p.Rewards = RewardsUpdate{Kind: RewardsCurrentOnly, Amount: amount, ExpectedLiquidity: expLiq}
		return p, nil
	}

	startTick, err := r.I24()
	if err != nil {
		return p, err
	}
	startLiq, err := r.U128()
	if err != nil {
		return p, err
	}
	quantities, err := decodeU128List(r, budget)
	if err != nil {
		return p, err
	}
	checksum, err := r.U160()
	if err != nil {
		return p, err
	}
	p.Rewards = RewardsUpdate{
		Kind:           RewardsMultiTick,
		StartTick:      startTick,
		StartLiquidity: startLiq,
		Quantities:     quantities,
		RewardChecksum: checksum,
	}
	return p, nil
}

func decodeU128List(r *reader.Reader, budget *Budget) ([]*uint256.Int, error) {
	sub, err := r.LengthPrefixed()
	if err != nil {
		return nil, err
	}
	var out []*uint256.Int
	for !sub.AtEnd() {
		if err := budget.Consume(1); err != nil {
			return nil, err
		}
		v, err := sub.U128()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, sub.RequireAtEnd()
}

func decodeSignature(r *reader.Reader, kind SignatureKind) (Signature, error) {
	var s Signature
	s.Kind = kind
	if kind == SignatureECDSA {
		rBytes, err := r.FixedBytes(32)
		if err != nil {
			return s, err
		}
		sBytes, err := r.FixedBytes(32)
		if err != nil {
			return s, err
		}
		v, err := r.U8()
		if err != nil {
			return s, err
		}
		copy(s.R[:], rBytes)
		copy(s.S[:], sBytes)
		s.V = v
		return s, nil
	}
	signer, err := r.Address()
	if err != nil {
		return s, err
	}
	payloadReader, err := r.LengthPrefixed()
	if err != nil {
		return s, err
	}
	payload, err := payloadReader.FixedBytes(payloadReader.Len())
	if err != nil {
		return s, err
	}
	if err := payloadReader.RequireAtEnd(); err != nil {
		return s, err
	}
	s.SignerAddress = signer
	s.Payload = payload
	return s, nil
}

func decodeTopOfBlockList(r *reader.Reader, budget *Budget) ([]TopOfBlockOrder, error) {
	sub, err := r.LengthPrefixed()
	if err != nil {
		return nil, err
	}
	var out []TopOfBlockOrder
	for !sub.AtEnd() {
		if err := budget.Consume(1); err != nil {
			return nil, err
		}
		o, err := decodeTopOfBlock(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, sub.RequireAtEnd()
}

func decodeTopOfBlock(r *reader.Reader) (TopOfBlockOrder, error) {
	var o TopOfBlockOrder
	bm, err := readVariantBitmap(r, 4)
	if err != nil {
		return o, err
	}
	o.UseInternal = bm.nextBool()
	o.ZeroForOne = bm.nextBool()
	o.HasRecipient = bm.nextBool()
	sigKind := SignatureKind(bm.next(1))

	qIn, err := r.U128()
	if err != nil {
		return o, err
	}
	qOut, err := r.U128()
	if err != nil {
		return o, err
	}
	maxGas, err := r.U128()
	if err != nil {
		return o, err
	}
	gasUsed, err := r.U128()
	if err != nil {
		return o, err
	}
	pairIndex, err := r.U16()
	if err != nil {
		return o, err
	}
	o.QuantityIn, o.QuantityOut, o.MaxGasAsset0, o.GasUsedAsset0, o.PairIndex = qIn, qOut, maxGas, gasUsed, pairIndex

	if o.HasRecipient {
		rec, err := r.Address()
		if err != nil {
			return o, err
		}
		o.Recipient = rec
	}
	sig, err := decodeSignature(r, sigKind)
	if err != nil {
		return o, err
	}
	o.Signature = sig
	return o, nil
}

func decodeUserOrderList(r *reader.Reader, budget *Budget) ([]UserOrder, error) {
	sub, err := r.LengthPrefixed()
	if err != nil {
		return nil, err
	}
	var out []UserOrder
	for !sub.AtEnd() {
		if err := budget.Consume(1); err != nil {
			return nil, err
		}
		o, err := decodeUserOrder(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, sub.RequireAtEnd()
}

func decodeUserOrder(r *reader.Reader) (UserOrder, error) {
	var o UserOrder
	bm, err := readVariantBitmap(r, 8)
	if err != nil {
		return o, err
	}
	o.Fill = FillKind(bm.next(1))
	o.Standing = StandingKind(bm.next(1))
	o.ZeroForOne = bm.nextBool()
	o.HasRecipient = bm.nextBool()
	o.HasHook = bm.nextBool()
	sigKind := SignatureKind(bm.next(1))
	o.ExactIn = bm.nextBool()
	o.UseInternal = bm.nextBool()

	pairIndex, err := r.U16()
	if err != nil {
		return o, err
	}
	minPrice, err := r.U256()
	if err != nil {
		return o, err
	}
	o.PairIndex, o.MinPrice = pairIndex, minPrice

	if o.HasRecipient {
		rec, err := r.Address()
		if err != nil {
			return o, err
		}
		o.Recipient = rec
	}
	if o.HasHook {
		hookAddr, err := r.Address()
		if err != nil {
			return o, err
		}
		payloadReader, err := r.LengthPrefixed()
		if err != nil {
			return o, err
		}
		payload, err := payloadReader.FixedBytes(payloadReader.Len())
		if err != nil {
			return o, err
		}
		if err := payloadReader.RequireAtEnd(); err != nil {
			return o, err
		}
		o.HookAddress, o.HookPayload = hookAddr, payload
	}

	extraFeeCap, err := r.U128()
	if err != nil {
		return o, err
	}
	extraFee, err := r.U128()
	if err != nil {
		return o, err
	}
	o.ExtraFeeCap, o.ExtraFee = extraFeeCap, extraFee

	if o.Fill == FillPartial {
		minIn, err := r.U128()
		if err != nil {
			return o, err
		}
		maxIn, err := r.U128()
		if err != nil {
			return o, err
		}
		filledIn, err := r.U128()
		if err != nil {
			return o, err
		}
		o.MinIn, o.MaxIn, o.FilledIn = minIn, maxIn, filledIn
	} else {
		amount, err := r.U128()
		if err != nil {
			return o, err
		}
		o.Amount = amount
	}

	if o.Standing == OrderStanding {
		nonce, err := r.U64()
		if err != nil {
			return o, err
		}
		deadline, err := r.U40()
		if err != nil {
			return o, err
		}
		o.Nonce, o.Deadline = nonce, deadline
	} else {
		validForBlock, err := r.U64()
		if err != nil {
			return o, err
		}
		o.ValidForBlock = validForBlock
	}

	sig, err := decodeSignature(r, sigKind)
	if err != nil {
		return o, err
	}
	o.Signature = sig
	return o, nil
}
