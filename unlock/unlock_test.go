package unlock

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/auth"
	"github.com/angstrom-labs/angstrom-core/configstore"
	"github.com/angstrom-labs/angstrom-core/sig"
)

func testPrivateKey(b byte) []byte {
	k := make([]byte, 32)
	k[31] = b
	return k
}

func signAttestation(t *testing.T, key []byte, block uint64) (r, s [32]byte, v uint8, signer common.Address) {
	t.Helper()
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	digest := sig.HashAttestation(block)
	sigBytes, err := crypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	copy(r[:], sigBytes[0:32])
	copy(s[:], sigBytes[32:64])
	return r, s, sigBytes[64] + 27, crypto.PubkeyToAddress(priv.PublicKey)
}

func buildUnlockData(operator common.Address, r, s [32]byte, v uint8) []byte {
	out := make([]byte, 0, unlockDataLen)
	out = append(out, operator[:]...)
	out = append(out, r[:]...)
	out = append(out, s[:]...)
	out = append(out, v)
	return out
}

func testPairKey(t *testing.T) configstore.PairKey {
	t.Helper()
	key, err := configstore.ComputePairKey(common.HexToAddress("0x1"), common.HexToAddress("0x2"))
	if err != nil {
		t.Fatalf("ComputePairKey: %v", err)
	}
	return key
}

func TestPreSwapHookPassesThroughWhenAlreadyAttested(t *testing.T) {
	a, _ := auth.New(common.HexToAddress("0xc0ffee"), nil)
	cfg := configstore.New(nil)
	key := testPairKey(t)
	if err := cfg.Add(configstore.Entry{Key: key, TickSpacing: 60, BundleFee: 1000}, 5000); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := a.AcquireBlockLock(10); err != nil {
		t.Fatalf("AcquireBlockLock: %v", err)
	}

	gate := &Gate{Auth: a, Config: cfg}
	fee, err := gate.PreSwapHook(key, 10, nil)
	if err != nil {
		t.Fatalf("PreSwapHook: %v", err)
	}
	if fee != 5000 {
		t.Errorf("fee = %d, want 5000", fee)
	}
}

func TestPreSwapHookRejectsWhenUnattestedAndNoUnlockData(t *testing.T) {
	a, _ := auth.New(common.HexToAddress("0xc0ffee"), nil)
	cfg := configstore.New(nil)
	key := testPairKey(t)
	if err := cfg.Add(configstore.Entry{Key: key, TickSpacing: 60, BundleFee: 1000}, 5000); err != nil {
		t.Fatalf("Add: %v", err)
	}

	gate := &Gate{Auth: a, Config: cfg}
	if _, err := gate.PreSwapHook(key, 10, nil); err != apperr.ErrUnlockDataTooShort {
		t.Errorf("err = %v, want ErrUnlockDataTooShort", err)
	}
}

func TestPreSwapHookAttestsAndUnlocksWithValidData(t *testing.T) {
	controller := common.HexToAddress("0xc0ffee")
	a, _ := auth.New(controller, nil)
	cfg := configstore.New(nil)
	key := testPairKey(t)
	if err := cfg.Add(configstore.Entry{Key: key, TickSpacing: 60, BundleFee: 1000}, 5000); err != nil {
		t.Fatalf("Add: %v", err)
	}

	opKey := testPrivateKey(1)
	priv, _ := crypto.ToECDSA(opKey)
	operator := crypto.PubkeyToAddress(priv.PublicKey)
	if err := a.ToggleOperators(controller, []common.Address{operator}); err != nil {
		t.Fatalf("ToggleOperators: %v", err)
	}

	r, s, v, signer := signAttestation(t, opKey, 10)
	if signer != operator {
		t.Fatalf("signer = %s, want %s", signer, operator)
	}
	data := buildUnlockData(operator, r, s, v)

	gate := &Gate{Auth: a, Config: cfg}
	fee, err := gate.PreSwapHook(key, 10, data)
	if err != nil {
		t.Fatalf("PreSwapHook: %v", err)
	}
	if fee != 5000 {
		t.Errorf("fee = %d, want 5000", fee)
	}
	if !a.IsBlockAttested(10) {
		t.Error("block 10 should now be attested")
	}
}

func TestPreSwapHookRejectsUnsetUnlockedFee(t *testing.T) {
	a, _ := auth.New(common.HexToAddress("0xc0ffee"), nil)
	cfg := configstore.New(nil)
	key := testPairKey(t)
	if err := a.AcquireBlockLock(1); err != nil {
		t.Fatalf("AcquireBlockLock: %v", err)
	}

	gate := &Gate{Auth: a, Config: cfg}
	if _, err := gate.PreSwapHook(key, 1, nil); err != apperr.ErrUnlockedFeeNotSet {
		t.Errorf("err = %v, want ErrUnlockedFeeNotSet", err)
	}
}
