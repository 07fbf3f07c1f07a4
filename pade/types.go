// Package pade implements the decode side of the bundle wire format:
// big-endian fixed-width primitives, length-prefixed lists, and product
// structs whose enum-typed fields are aggregated into one front variant
// bitmap. The decoder never allocates heap structures beyond the plain Go
// structs it returns — there is no re-encoding path; bundles are only ever
// produced off-chain and consumed here.
package pade

import "github.com/holiman/uint256"

// Asset is one entry of the bundle's asset list.
type Asset struct {
	Address [20]byte
	Save    *uint256.Int
	Take    *uint256.Int
	Settle  *uint256.Int
}

// Pair is one entry of the bundle's pair list. Index0 < Index1.
type Pair struct {
	Index0      uint16
	Index1      uint16
	StoreIndex  uint16
	Price1Over0 *uint256.Int
	// InversePrice0Over1 is computed and cached on load, not part of the
	// wire encoding.
	InversePrice0Over1 *uint256.Int
}

// RewardsKind tags which RewardsUpdate variant a PoolUpdate carries.
type RewardsKind uint8

const (
	RewardsCurrentOnly RewardsKind = iota
	RewardsMultiTick
)

// RewardsUpdate is the tagged reward-distribution instruction attached to a
// PoolUpdate.
type RewardsUpdate struct {
	Kind RewardsKind

	// CurrentOnly fields.
	Amount            *uint256.Int
	ExpectedLiquidity *uint256.Int

	// MultiTick fields.
	StartTick      int32
	StartLiquidity *uint256.Int
	Quantities     []*uint256.Int
	RewardChecksum *uint256.Int // low 160 bits significant
}

// PoolUpdate is one swap-and-reward instruction.
type PoolUpdate struct {
	ZeroForOne     bool
	CurrentOnly    bool
	PairIndex      uint16
	SwapInQuantity *uint256.Int
	Rewards        RewardsUpdate
}

// SignatureKind tags which Signature variant an order carries.
type SignatureKind uint8

const (
	SignatureECDSA SignatureKind = iota
	SignatureContract
)

// Signature is the tagged signature variant attached to an order: either a
// raw ECDSA (r, s, v) triple or a smart-contract signer address plus an
// arbitrary verification payload.
type Signature struct {
	Kind SignatureKind

	// ECDSA fields.
	R, S [32]byte
	V    uint8

	// Contract-signature fields.
	SignerAddress [20]byte
	Payload       []byte
}

// TopOfBlockOrder is a single top-of-block order.
type TopOfBlockOrder struct {
	UseInternal   bool
	ZeroForOne    bool
	QuantityIn    *uint256.Int
	QuantityOut   *uint256.Int
	MaxGasAsset0  *uint256.Int
	GasUsedAsset0 *uint256.Int
	PairIndex     uint16
	HasRecipient  bool
	Recipient     [20]byte
	Signature     Signature
}

// FillKind tags exact vs. partial quantity orders.
type FillKind uint8

const (
	FillPartial FillKind = iota
	FillExact
)

// StandingKind tags standing (nonce+deadline) vs. flash (block-bound)
// orders.
type StandingKind uint8

const (
	OrderFlash StandingKind = iota
	OrderStanding
)

// UserOrder is a single user order, parameterized along two orthogonal
// axes: exact-vs-partial quantity, standing-vs-flash validity.
type UserOrder struct {
	Fill        FillKind
	Standing    StandingKind
	ZeroForOne  bool
	ExactIn     bool // meaningful only when Fill == FillExact
	UseInternal bool

	PairIndex uint16
	MinPrice  *uint256.Int // RAY-scaled min output per input

	HasRecipient bool
	Recipient    [20]byte

	HasHook     bool
	HookAddress [20]byte
	HookPayload []byte

	ExtraFeeCap *uint256.Int
	ExtraFee    *uint256.Int

	// Partial-fill fields.
	MinIn    *uint256.Int
	MaxIn    *uint256.Int
	FilledIn *uint256.Int

	// Exact-fill field.
	Amount *uint256.Int

	// Standing-order fields.
	Nonce    uint64
	Deadline uint64 // unix seconds, u40-wide on the wire

	// Flash-order field: the only block the order may execute in.
	ValidForBlock uint64

	Signature Signature
}

// Bundle is the full decoded submission for one block: no outer variant
// bitmap since none of its top-level fields are enums.
type Bundle struct {
	Assets           []Asset
	Pairs            []Pair
	PoolUpdates      []PoolUpdate
	TopOfBlockOrders []TopOfBlockOrder
	UserOrders       []UserOrder
}
