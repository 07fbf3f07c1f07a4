// Package sig implements order signing and verification: EIP-712 struct
// hashing for the five order type-hashes plus the two signature variants an
// order can carry (a recoverable ECDSA signature or a smart-contract
// callback that must answer with a fixed magic value).
package sig

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/angstrom-labs/angstrom-core/apperr"
)

// HookReturnMagic is the 4-byte value a composable hook must return; the low
// 4 bytes of keccak256("Angstrom.hook.return-magic").
var HookReturnMagic = func() [4]byte {
	h := crypto.Keccak256([]byte("Angstrom.hook.return-magic"))
	var m [4]byte
	copy(m[:], h[len(h)-4:])
	return m
}()

// ContractSignatureMagic is the ERC-1271 magic value a contract signer must
// return from its verification callback.
var ContractSignatureMagic = [4]byte{0x16, 0x26, 0xba, 0x7e}

// Domain is the per-deployment EIP-712 domain separator input.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

var orderFields = []apitypes.Type{
	{Name: "zeroForOne", Type: "bool"},
	{Name: "pairIndex", Type: "uint16"},
	{Name: "minPrice", Type: "uint256"},
	{Name: "recipient", Type: "address"},
	{Name: "hookAddress", Type: "address"},
	{Name: "hookPayloadHash", Type: "bytes32"},
	{Name: "extraFeeCap", Type: "uint256"},
	{Name: "extraFee", Type: "uint256"},
	{Name: "amountOrMinIn", Type: "uint256"},
	{Name: "maxIn", Type: "uint256"},
	{Name: "filledIn", Type: "uint256"},
	{Name: "nonce", Type: "uint64"},
	{Name: "deadline", Type: "uint64"},
	{Name: "validForBlock", Type: "uint64"},
}

var tobFields = []apitypes.Type{
	{Name: "useInternal", Type: "bool"},
	{Name: "zeroForOne", Type: "bool"},
	{Name: "quantityIn", Type: "uint256"},
	{Name: "quantityOut", Type: "uint256"},
	{Name: "maxGasAsset0", Type: "uint256"},
	{Name: "gasUsedAsset0", Type: "uint256"},
	{Name: "pairIndex", Type: "uint16"},
	{Name: "recipient", Type: "address"},
}

// OrderVariant names one of the five struct type-hashes an order digest can
// use, selected by its fill/standing axes.
type OrderVariant string

const (
	PartialStanding OrderVariant = "PartialStandingOrder"
	ExactStanding   OrderVariant = "ExactStandingOrder"
	PartialFlash    OrderVariant = "PartialFlashOrder"
	ExactFlash      OrderVariant = "ExactFlashOrder"
	TopOfBlock      OrderVariant = "TopOfBlockOrder"
)

// OrderMessage is the set of fields hashed for a user order, already
// projected from the decoded wire struct (hook payload is hashed to keep the
// struct hash fixed-width regardless of payload length).
type OrderMessage struct {
	ZeroForOne      bool
	PairIndex       uint16
	MinPrice        *big.Int
	Recipient       common.Address
	HookAddress     common.Address
	HookPayloadHash [32]byte
	ExtraFeeCap     *big.Int
	ExtraFee        *big.Int
	AmountOrMinIn   *big.Int
	MaxIn           *big.Int
	FilledIn        *big.Int
	Nonce           uint64
	Deadline        uint64

	// ValidForBlock binds a flash order to a single block; standing orders
	// leave it zero and rely on Nonce/Deadline instead.
	ValidForBlock uint64
}

// TopOfBlockMessage is the set of fields hashed for a top-of-block order.
type TopOfBlockMessage struct {
	UseInternal   bool
	ZeroForOne    bool
	QuantityIn    *big.Int
	QuantityOut   *big.Int
	MaxGasAsset0  *big.Int
	GasUsedAsset0 *big.Int
	PairIndex     uint16
	Recipient     common.Address
}

func domainTypes() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
	}
}

func typedDataDomain(d Domain) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(d.ChainID),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// HashOrder computes the EIP-712 digest for a user order of the given
// variant: keccak256(0x1901 || domainSeparator || structHash).
func HashOrder(d Domain, variant OrderVariant, m OrderMessage) ([32]byte, error) {
	types := domainTypes()
	types[string(variant)] = orderFields

	msg := apitypes.TypedDataMessage{
		"zeroForOne":      m.ZeroForOne,
		"pairIndex":       fmt.Sprintf("%d", m.PairIndex),
		"minPrice":        bigStr(m.MinPrice),
		"recipient":       m.Recipient.Hex(),
		"hookAddress":     m.HookAddress.Hex(),
		"hookPayloadHash": "0x" + common.Bytes2Hex(m.HookPayloadHash[:]),
		"extraFeeCap":     bigStr(m.ExtraFeeCap),
		"extraFee":        bigStr(m.ExtraFee),
		"amountOrMinIn":   bigStr(m.AmountOrMinIn),
		"maxIn":           bigStr(m.MaxIn),
		"filledIn":        bigStr(m.FilledIn),
		"nonce":           fmt.Sprintf("%d", m.Nonce),
		"deadline":        fmt.Sprintf("%d", m.Deadline),
		"validForBlock":   fmt.Sprintf("%d", m.ValidForBlock),
	}

	td := apitypes.TypedData{
		Types:       types,
		PrimaryType: string(variant),
		Domain:      typedDataDomain(d),
		Message:     msg,
	}
	return hashTypedData(td)
}

// HashTopOfBlock computes the EIP-712 digest for a top-of-block order.
func HashTopOfBlock(d Domain, m TopOfBlockMessage) ([32]byte, error) {
	types := domainTypes()
	types[string(TopOfBlock)] = tobFields

	msg := apitypes.TypedDataMessage{
		"useInternal":   m.UseInternal,
		"zeroForOne":    m.ZeroForOne,
		"quantityIn":    bigStr(m.QuantityIn),
		"quantityOut":   bigStr(m.QuantityOut),
		"maxGasAsset0":  bigStr(m.MaxGasAsset0),
		"gasUsedAsset0": bigStr(m.GasUsedAsset0),
		"pairIndex":     fmt.Sprintf("%d", m.PairIndex),
		"recipient":     m.Recipient.Hex(),
	}

	td := apitypes.TypedData{
		Types:       types,
		PrimaryType: string(TopOfBlock),
		Domain:      typedDataDomain(d),
		Message:     msg,
	}
	return hashTypedData(td)
}

func hashTypedData(td apitypes.TypedData) ([32]byte, error) {
	var out [32]byte
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return out, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return out, fmt.Errorf("hash struct: %w", err)
	}
	raw := append([]byte{0x19, 0x01}, domainSeparator...)
	raw = append(raw, structHash...)
	copy(out[:], crypto.Keccak256(raw))
	return out, nil
}

// ContractVerifier checks a smart-contract signature by invoking the
// signer's verification callback; out of process (no EVM here), so callers
// supply an implementation that knows how to reach the signer contract.
type ContractVerifier interface {
	Verify(signer common.Address, digest [32]byte, payload []byte) (magic [4]byte, err error)
}

// Verify checks an order's signature against its digest: ECDSA recovery
// compared to the claimed signer, or a contract-signature callback that must
// answer with the fixed magic value.
func Verify(cv ContractVerifier, digest [32]byte, kind uint8, claimedSigner common.Address, r, s [32]byte, v uint8, payload []byte) error {
	const (
		kindECDSA    = 0
		kindContract = 1
	)
	switch kind {
	case kindECDSA:
		recovered, err := recoverAddress(digest, r, s, v)
		if err != nil || recovered != claimedSigner {
			return apperr.ErrInvalidSignature
		}
		return nil
	case kindContract:
		if cv == nil {
			return apperr.ErrInvalidSignature
		}
		magic, err := cv.Verify(claimedSigner, digest, payload)
		if err != nil || magic != ContractSignatureMagic {
			return apperr.ErrInvalidSignature
		}
		return nil
	default:
		return apperr.ErrInvalidPermitType
	}
}

// Resolve determines an order's signer from its signature variant: ECDSA
// recovery yields the signer directly, while a contract signature names its
// signer explicitly and must have its callback answer with the fixed magic
// value before that name is trusted.
func Resolve(cv ContractVerifier, digest [32]byte, kind uint8, r, s [32]byte, v uint8, contractSigner common.Address, payload []byte) (common.Address, error) {
	const (
		kindECDSA    = 0
		kindContract = 1
	)
	switch kind {
	case kindECDSA:
		return recoverAddress(digest, r, s, v)
	case kindContract:
		if cv == nil {
			return common.Address{}, apperr.ErrInvalidSignature
		}
		magic, err := cv.Verify(contractSigner, digest, payload)
		if err != nil || magic != ContractSignatureMagic {
			return common.Address{}, apperr.ErrInvalidSignature
		}
		return contractSigner, nil
	default:
		return common.Address{}, apperr.ErrInvalidPermitType
	}
}

// attestationPrefix is keccak256("AttestAngstromBlockEmpty(uint64)"), hashed
// once at package init since the string never changes.
var attestationPrefix = crypto.Keccak256([]byte("AttestAngstromBlockEmpty(uint64)"))

// HashAttestation computes the digest an operator signs to attest that block
// carried no bundle: keccak256(keccak256("AttestAngstromBlockEmpty(uint64)") || block).
func HashAttestation(block uint64) [32]byte {
	var blockBytes [8]byte
	for i := 0; i < 8; i++ {
		blockBytes[7-i] = byte(block >> (8 * i))
	}
	raw := make([]byte, 0, len(attestationPrefix)+8)
	raw = append(raw, attestationPrefix...)
	raw = append(raw, blockBytes[:]...)
	var out [32]byte
	copy(out[:], crypto.Keccak256(raw))
	return out
}

func recoverAddress(digest [32]byte, r, s [32]byte, v uint8) (common.Address, error) {
	sig := make([]byte, 65)
	copy(sig[0:32], r[:])
	copy(sig[32:64], s[:])
	if v >= 27 {
		v -= 27
	}
	sig[64] = v

	pubBytes, err := crypto.Ecrecover(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("unmarshal pubkey: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
