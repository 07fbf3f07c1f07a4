package order

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/bundletables"
	"github.com/angstrom-labs/angstrom-core/delta"
	"github.com/angstrom-labs/angstrom-core/nonce"
	"github.com/angstrom-labs/angstrom-core/pade"
	"github.com/angstrom-labs/angstrom-core/sig"
)

type stubBalances struct {
	debited, credited map[string]*uint256.Int
}

func newStubBalances() *stubBalances {
	return &stubBalances{debited: map[string]*uint256.Int{}, credited: map[string]*uint256.Int{}}
}

func balKey(owner, asset common.Address) string { return owner.Hex() + ":" + asset.Hex() }

func (b *stubBalances) Debit(owner, asset common.Address, amount *uint256.Int) error {
	b.debited[balKey(owner, asset)] = amount
	return nil
}
func (b *stubBalances) Credit(owner, asset common.Address, amount *uint256.Int) error {
	b.credited[balKey(owner, asset)] = amount
	return nil
}

type stubTransfers struct {
	from, to map[string]*uint256.Int
}

func newStubTransfers() *stubTransfers {
	return &stubTransfers{from: map[string]*uint256.Int{}, to: map[string]*uint256.Int{}}
}
func (t *stubTransfers) TransferFrom(from, asset common.Address, amount *uint256.Int) error {
	t.from[balKey(from, asset)] = amount
	return nil
}
func (t *stubTransfers) TransferTo(to, asset common.Address, amount *uint256.Int) error {
	t.to[balKey(to, asset)] = amount
	return nil
}

func testDomain() sig.Domain {
	return sig.Domain{Name: "Angstrom", Version: "v1", ChainID: big.NewInt(1), VerifyingContract: common.HexToAddress("0xdead")}
}

func testPair() bundletables.ResolvedPair {
	asset0 := common.HexToAddress("0x1")
	asset1 := common.HexToAddress("0x2")
	price1over0 := new(uint256.Int).Mul(uint256.NewInt(1), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(27)))
	inv := new(uint256.Int).Set(price1over0) // price is 1:1, so inverse is also 1 RAY
	return bundletables.ResolvedPair{
		Asset0: asset0,
		Asset1: asset1,
		Raw: pade.Pair{
			Index0: 0, Index1: 1,
			Price1Over0:        price1over0,
			InversePrice0Over1: inv,
		},
		TickSpacing:        60,
		BundleFeeMicrobips: 2000, // 0.2%, matches scenario S1
	}
}

func signOrder(t *testing.T, key []byte, digest [32]byte) ([32]byte, [32]byte, uint8) {
	t.Helper()
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	sigBytes, err := crypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var r, s [32]byte
	copy(r[:], sigBytes[0:32])
	copy(s[:], sigBytes[32:64])
	return r, s, sigBytes[64] + 27
}

func testPrivateKey() []byte {
	b := make([]byte, 32)
	b[31] = 1
	return b
}

func baseExactOrder() pade.UserOrder {
	return pade.UserOrder{
		Fill:          pade.FillExact,
		Standing:      pade.OrderFlash,
		ZeroForOne:    true,
		ExactIn:       true,
		PairIndex:     0,
		MinPrice:      uint256.NewInt(0),
		ExtraFeeCap:   uint256.NewInt(0),
		ExtraFee:      uint256.NewInt(0),
		Amount:        mustFromDecimal("1000000000000000000"), // 1e18, scenario S1
		ValidForBlock: 1,                                      // matches the currentBlock every test below validates against
	}
}

func mustFromDecimal(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestValidateComputesScenarioS1Output(t *testing.T) {
	priv, err := crypto.ToECDSA(testPrivateKey())
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	signer := crypto.PubkeyToAddress(priv.PublicKey)

	o := baseExactOrder()
	pair := testPair()

	msg := orderMessage(o)
	digest, err := sig.HashOrder(testDomain(), variantFor(o), msg)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}
	r, s, v := signOrder(t, testPrivateKey(), digest)
	o.Signature = pade.Signature{Kind: pade.SignatureECDSA, R: r, S: s, V: v}

	tracker := delta.New()
	transfers := newStubTransfers()
	val := &Validator{
		Domain:    testDomain(),
		Nonces:    nonce.New(nil),
		Balances:  newStubBalances(),
		Transfers: transfers,
	}

	if err := val.Validate(o, pair, tracker, NewExecutedSet(), 0, 1); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	wantOut := mustFromDecimal("998000000000000000")
	gotOut := tracker.Balance(pair.Asset1)
	// delta[asset1] was debited (Sub) by `out`, so it should equal -out.
	wantDelta := new(big.Int).Neg(wantOut.ToBig())
	if gotOut.Cmp(wantDelta) != 0 {
		t.Errorf("delta[asset1] = %s, want %s", gotOut, wantDelta)
	}

	gotIn := transfers.from[balKey(signer, pair.Asset0)]
	if gotIn == nil || !gotIn.Eq(o.Amount) {
		t.Errorf("transferFrom(%s) = %v, want %s", signer, gotIn, o.Amount.Dec())
	}
}

func TestValidateRejectsBadSignature(t *testing.T) {
	o := baseExactOrder()
	pair := testPair()
	// r = s = 0 is never a valid ECDSA signature component; recovery must fail.
	o.Signature = pade.Signature{Kind: pade.SignatureECDSA, R: [32]byte{}, S: [32]byte{}, V: 27}

	val := &Validator{Domain: testDomain(), Nonces: nonce.New(nil), Balances: newStubBalances(), Transfers: newStubTransfers()}
	err := val.Validate(o, pair, delta.New(), NewExecutedSet(), 0, 1)
	if err == nil {
		t.Fatal("expected an error for a malformed signature")
	}
}

func TestValidateRejectsNonceReuse(t *testing.T) {
	o := baseExactOrder()
	o.Standing = pade.OrderStanding
	o.Nonce = 7
	o.Deadline = 1 << 40 - 1
	pair := testPair()

	msg := orderMessage(o)
	digest, _ := sig.HashOrder(testDomain(), variantFor(o), msg)
	r, s, v := signOrder(t, testPrivateKey(), digest)
	o.Signature = pade.Signature{Kind: pade.SignatureECDSA, R: r, S: s, V: v}

	nonces := nonce.New(nil)
	val := &Validator{Domain: testDomain(), Nonces: nonces, Balances: newStubBalances(), Transfers: newStubTransfers()}

	if err := val.Validate(o, pair, delta.New(), NewExecutedSet(), 0, 1); err != nil {
		t.Fatalf("first Validate: %v", err)
	}
	if err := val.Validate(o, pair, delta.New(), NewExecutedSet(), 0, 1); err != apperr.ErrNonceReuse {
		t.Errorf("second Validate err = %v, want ErrNonceReuse", err)
	}
}

func TestValidateRejectsExpiredStandingOrder(t *testing.T) {
	o := baseExactOrder()
	o.Standing = pade.OrderStanding
	o.Nonce = 1
	o.Deadline = 100
	pair := testPair()

	msg := orderMessage(o)
	digest, _ := sig.HashOrder(testDomain(), variantFor(o), msg)
	r, s, v := signOrder(t, testPrivateKey(), digest)
	o.Signature = pade.Signature{Kind: pade.SignatureECDSA, R: r, S: s, V: v}

	val := &Validator{Domain: testDomain(), Nonces: nonce.New(nil), Balances: newStubBalances(), Transfers: newStubTransfers()}
	if err := val.Validate(o, pair, delta.New(), NewExecutedSet(), 200, 1); err != apperr.ErrExpired {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestValidateRejectsPartialFillBelowMin(t *testing.T) {
	o := baseExactOrder()
	o.Fill = pade.FillPartial
	o.MinIn = mustFromDecimal("500000000000000000")
	o.MaxIn = mustFromDecimal("2000000000000000000")
	o.FilledIn = mustFromDecimal("100000000000000000") // below MinIn
	o.Amount = nil
	pair := testPair()

	msg := orderMessage(o)
	digest, _ := sig.HashOrder(testDomain(), variantFor(o), msg)
	r, s, v := signOrder(t, testPrivateKey(), digest)
	o.Signature = pade.Signature{Kind: pade.SignatureECDSA, R: r, S: s, V: v}

	val := &Validator{Domain: testDomain(), Nonces: nonce.New(nil), Balances: newStubBalances(), Transfers: newStubTransfers()}
	if err := val.Validate(o, pair, delta.New(), NewExecutedSet(), 0, 1); err != apperr.ErrFillingTooLittle {
		t.Errorf("err = %v, want ErrFillingTooLittle", err)
	}
}

func TestValidateRejectsFlashOrderBoundToWrongBlock(t *testing.T) {
	o := baseExactOrder()
	o.ValidForBlock = 1
	pair := testPair()

	msg := orderMessage(o)
	digest, _ := sig.HashOrder(testDomain(), variantFor(o), msg)
	r, s, v := signOrder(t, testPrivateKey(), digest)
	o.Signature = pade.Signature{Kind: pade.SignatureECDSA, R: r, S: s, V: v}

	val := &Validator{Domain: testDomain(), Nonces: nonce.New(nil), Balances: newStubBalances(), Transfers: newStubTransfers()}
	if err := val.Validate(o, pair, delta.New(), NewExecutedSet(), 0, 2); err != apperr.ErrWrongBlock {
		t.Errorf("err = %v, want ErrWrongBlock", err)
	}
}

func TestValidateRejectsExtraFeeAboveCap(t *testing.T) {
	o := baseExactOrder()
	o.ExtraFeeCap = uint256.NewInt(10)
	o.ExtraFee = uint256.NewInt(20)
	pair := testPair()

	msg := orderMessage(o)
	digest, _ := sig.HashOrder(testDomain(), variantFor(o), msg)
	r, s, v := signOrder(t, testPrivateKey(), digest)
	o.Signature = pade.Signature{Kind: pade.SignatureECDSA, R: r, S: s, V: v}

	val := &Validator{Domain: testDomain(), Nonces: nonce.New(nil), Balances: newStubBalances(), Transfers: newStubTransfers()}
	if err := val.Validate(o, pair, delta.New(), NewExecutedSet(), 0, 1); err != apperr.ErrGasAboveMax {
		t.Errorf("err = %v, want ErrGasAboveMax", err)
	}
}
