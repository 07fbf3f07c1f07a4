package bundleexec

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/amm"
	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/auth"
	"github.com/angstrom-labs/angstrom-core/configstore"
	"github.com/angstrom-labs/angstrom-core/growth"
	"github.com/angstrom-labs/angstrom-core/nonce"
	"github.com/angstrom-labs/angstrom-core/order"
	"github.com/angstrom-labs/angstrom-core/pade"
	"github.com/angstrom-labs/angstrom-core/sig"
	"github.com/angstrom-labs/angstrom-core/swap"
)

type stubTransfers struct{}

func (stubTransfers) TransferFrom(from, asset common.Address, amount *uint256.Int) error { return nil }
func (stubTransfers) TransferTo(to, asset common.Address, amount *uint256.Int) error      { return nil }

type stubBalances struct{}

func (stubBalances) Debit(owner, asset common.Address, amount *uint256.Int) error  { return nil }
func (stubBalances) Credit(owner, asset common.Address, amount *uint256.Int) error { return nil }

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time                     { return c.at }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func testDomain() sig.Domain {
	return sig.Domain{Name: "Angstrom", Version: "v1", ChainID: big.NewInt(1), VerifyingContract: common.HexToAddress("0xdead")}
}

func testOperatorAuth(t *testing.T) (*auth.Auth, common.Address, common.Address) {
	t.Helper()
	controller := common.HexToAddress("0xC0")
	operator := common.HexToAddress("0x0A")
	a, err := auth.New(controller, nil)
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	if err := a.ToggleOperators(controller, []common.Address{operator}); err != nil {
		t.Fatalf("ToggleOperators: %v", err)
	}
	return a, controller, operator
}

func newTestExecutor(mem *amm.MemPool, cfg *configstore.Store, a *auth.Auth) *Executor {
	return &Executor{
		Auth:       a,
		Config:     cfg,
		Accounting: mem,
		Swap:       &swap.Driver{Pools: mem, Growths: map[amm.PoolID]*growth.Pool{}},
		Orders: &order.Validator{
			Domain:    testDomain(),
			Nonces:    nonce.New(nil),
			Balances:  stubBalances{},
			Transfers: stubTransfers{},
		},
		Clock:        fixedClock{at: time.Unix(1_000, 0)},
		DecodeBudget: 10_000,
	}
}

func rayOne() *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(27))
}

func bufEntry(addr common.Address, save *uint256.Int) []byte {
	b32 := save.Bytes32()
	out := make([]byte, 36)
	copy(out[:20], addr[:])
	copy(out[20:], b32[16:32])
	return out
}

func TestExecuteBundleSettlesSingleAssetAndEmitsFeeDigest(t *testing.T) {
	a, _, operator := testOperatorAuth(t)
	cfg := configstore.New(nil)
	mem := amm.NewMemPool()

	asset0 := common.HexToAddress("0x1")
	mem.CreditAccount(asset0, uint256.NewInt(100))

	exec := newTestExecutor(mem, cfg, a)
	bundle := &pade.Bundle{
		Assets: []pade.Asset{
			{Address: [20]byte(asset0), Save: uint256.NewInt(10), Take: uint256.NewInt(100), Settle: uint256.NewInt(90)},
		},
	}

	result, err := exec.executeBundle(operator, 1, bundle)
	if err != nil {
		t.Fatalf("executeBundle: %v", err)
	}

	wantBal := uint256.NewInt(90) // 100 credited - 100 taken + 90 settled
	if got := mem.AccountBalance(asset0); !got.Eq(wantBal) {
		t.Errorf("account balance = %s, want %s", got, wantBal)
	}

	want := crypto.Keccak256Hash(bufEntry(asset0, uint256.NewInt(10)))
	if result.FeeDigest != [32]byte(want) {
		t.Errorf("fee digest = %x, want %x", result.FeeDigest, want)
	}
}

func TestExecuteBundleRejectsNonOperatorCaller(t *testing.T) {
	a, _, _ := testOperatorAuth(t)
	cfg := configstore.New(nil)
	mem := amm.NewMemPool()
	exec := newTestExecutor(mem, cfg, a)

	notOperator := common.HexToAddress("0xbad")
	_, err := exec.executeBundle(notOperator, 1, &pade.Bundle{})
	if !errors.Is(err, apperr.ErrNotOperator) {
		t.Fatalf("err = %v, want ErrNotOperator", err)
	}
}

func TestExecuteBundleRejectsSecondBundleSameBlock(t *testing.T) {
	a, _, operator := testOperatorAuth(t)
	cfg := configstore.New(nil)
	mem := amm.NewMemPool()
	exec := newTestExecutor(mem, cfg, a)

	if _, err := exec.executeBundle(operator, 5, &pade.Bundle{}); err != nil {
		t.Fatalf("first executeBundle: %v", err)
	}
	_, err := exec.executeBundle(operator, 5, &pade.Bundle{})
	if !errors.Is(err, apperr.ErrOnlyOncePerBlock) {
		t.Fatalf("second executeBundle err = %v, want ErrOnlyOncePerBlock", err)
	}
}

func TestExecuteBundleRejectsOutOfOrderAssets(t *testing.T) {
	a, _, operator := testOperatorAuth(t)
	cfg := configstore.New(nil)
	mem := amm.NewMemPool()
	exec := newTestExecutor(mem, cfg, a)

	asset0 := common.HexToAddress("0x2")
	asset1 := common.HexToAddress("0x1") // descending: invalid
	bundle := &pade.Bundle{
		Assets: []pade.Asset{
			{Address: [20]byte(asset0), Save: uint256.NewInt(0), Take: uint256.NewInt(0), Settle: uint256.NewInt(0)},
			{Address: [20]byte(asset1), Save: uint256.NewInt(0), Take: uint256.NewInt(0), Settle: uint256.NewInt(0)},
		},
	}

	_, err := exec.executeBundle(operator, 1, bundle)
	if !errors.Is(err, apperr.ErrAssetsOutOfOrderOrNotUnique) {
		t.Fatalf("err = %v, want ErrAssetsOutOfOrderOrNotUnique", err)
	}
}

func signTopOfBlock(t *testing.T, key []byte, domain sig.Domain, msg sig.TopOfBlockMessage) (r, s [32]byte, v uint8, signer common.Address) {
	t.Helper()
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	digest, err := sig.HashTopOfBlock(domain, msg)
	if err != nil {
		t.Fatalf("HashTopOfBlock: %v", err)
	}
	sigBytes, err := crypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	copy(r[:], sigBytes[0:32])
	copy(s[:], sigBytes[32:64])
	return r, s, sigBytes[64] + 27, crypto.PubkeyToAddress(priv.PublicKey)
}

// TestExecuteBundleFoldsGasUsedAsset0IntoSaveBucket runs a bundle with a
// single top-of-block order and checks that its gas-used-asset0 is folded
// into asset0's save amount for both the delta-tracker settlement and the
// fee-commitment digest, without ever touching the delta tracker directly.
func TestExecuteBundleFoldsGasUsedAsset0IntoSaveBucket(t *testing.T) {
	a, _, operator := testOperatorAuth(t)

	asset0 := common.HexToAddress("0x1")
	asset1 := common.HexToAddress("0x2")

	cfg := configstore.New(nil)
	key, err := configstore.ComputePairKey(asset0, asset1)
	if err != nil {
		t.Fatalf("ComputePairKey: %v", err)
	}
	if err := cfg.Add(configstore.Entry{Key: key, TickSpacing: 60, BundleFee: 2000}, 2000); err != nil {
		t.Fatalf("cfg.Add: %v", err)
	}

	mem := amm.NewMemPool()
	mem.CreditAccount(asset1, uint256.NewInt(500))

	exec := newTestExecutor(mem, cfg, a)

	quantityIn := uint256.NewInt(1000)
	quantityOut := uint256.NewInt(500)
	maxGas := uint256.NewInt(100)
	gasUsed := uint256.NewInt(50)

	msg := sig.TopOfBlockMessage{
		UseInternal:   false,
		ZeroForOne:    true,
		QuantityIn:    quantityIn.ToBig(),
		QuantityOut:   quantityOut.ToBig(),
		MaxGasAsset0:  maxGas.ToBig(),
		GasUsedAsset0: gasUsed.ToBig(),
		PairIndex:     0,
		Recipient:     common.Address{},
	}
	testKey := make([]byte, 32)
	testKey[31] = 7
	r, s, v, _ := signTopOfBlock(t, testKey, testDomain(), msg)

	tob := pade.TopOfBlockOrder{
		ZeroForOne:    true,
		QuantityIn:    quantityIn,
		QuantityOut:   quantityOut,
		MaxGasAsset0:  maxGas,
		GasUsedAsset0: gasUsed,
		PairIndex:     0,
		Signature:     pade.Signature{Kind: pade.SignatureECDSA, R: r, S: s, V: v},
	}

	ray := rayOne()
	bundle := &pade.Bundle{
		Assets: []pade.Asset{
			{Address: [20]byte(asset0), Save: uint256.NewInt(950), Take: uint256.NewInt(0), Settle: uint256.NewInt(0)},
			{Address: [20]byte(asset1), Save: uint256.NewInt(0), Take: uint256.NewInt(500), Settle: uint256.NewInt(0)},
		},
		Pairs: []pade.Pair{
			{Index0: 0, Index1: 1, StoreIndex: 0, Price1Over0: ray, InversePrice0Over1: ray},
		},
		TopOfBlockOrders: []pade.TopOfBlockOrder{tob},
	}

	result, err := exec.executeBundle(operator, 1, bundle)
	if err != nil {
		t.Fatalf("executeBundle: %v", err)
	}

	wantDigest := crypto.Keccak256Hash(
		append(bufEntry(asset0, uint256.NewInt(950+50)), bufEntry(asset1, uint256.NewInt(0))...),
	)
	if result.FeeDigest != [32]byte(wantDigest) {
		t.Errorf("fee digest = %x, want %x", result.FeeDigest, wantDigest)
	}

	if got := mem.AccountBalance(asset1); !got.IsZero() {
		t.Errorf("asset1 account balance = %s, want 0 (500 credited, 500 taken)", got)
	}
}
