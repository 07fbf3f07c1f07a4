package position

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/growth"
)

func testKey() Key {
	return Key{
		Pool:  amm1,
		Owner: common.HexToAddress("0xabc"),
		Lower: -100,
		Upper: 100,
		Salt:  [32]byte{1},
	}
}

var amm1 = [32]byte{0xaa}

func TestOnAddLiquidityFromZeroSnapshotsCurrentGrowthInside(t *testing.T) {
	pool := growth.New()
	pool.GlobalGrowth = uint256.NewInt(1000)
	pool.GrowthOutside[-100] = uint256.NewInt(100)
	pool.GrowthOutside[100] = uint256.NewInt(200)

	l := New(nil)
	key := testKey()

	if err := l.OnAddLiquidity(pool, key, uint256.NewInt(0), uint256.NewInt(500), false, false, 0); err != nil {
		t.Fatalf("OnAddLiquidity: %v", err)
	}

	want := pool.GrowthInside(key.Lower, key.Upper, 0)
	e, _ := l.get(key)
	if !e.LastGrowthInside.Eq(want) {
		t.Errorf("LastGrowthInside = %s, want %s", e.LastGrowthInside.Dec(), want.Dec())
	}
}

func TestNoRewardAccruesBetweenAddAndImmediateRemove(t *testing.T) {
	pool := growth.New()
	pool.GlobalGrowth = uint256.NewInt(1000)

	l := New(nil)
	key := testKey()

	if err := l.OnAddLiquidity(pool, key, uint256.NewInt(0), uint256.NewInt(500), false, false, 0); err != nil {
		t.Fatalf("OnAddLiquidity: %v", err)
	}

	owed, err := l.OnRemoveLiquidity(pool, key, uint256.NewInt(500), 0)
	if err != nil {
		t.Fatalf("OnRemoveLiquidity: %v", err)
	}
	if !owed.IsZero() {
		t.Errorf("owed = %s, want 0 (no reward distributed between add and remove)", owed.Dec())
	}
}

func TestOnRemoveLiquidityCreditsProportionalReward(t *testing.T) {
	pool := growth.New()
	l := New(nil)
	key := testKey()

	// Snapshot at growth-inside = 0.
	if err := l.OnAddLiquidity(pool, key, uint256.NewInt(0), uint256.NewInt(1000), false, false, 0); err != nil {
		t.Fatalf("OnAddLiquidity: %v", err)
	}

	// Reward accrues: global growth advances (simulating a distribution).
	pool.GlobalGrowth = new(uint256.Int).Lsh(uint256.NewInt(1), 128) // 1 unit of reward per unit liquidity in X128 terms

	owed, err := l.OnRemoveLiquidity(pool, key, uint256.NewInt(1000), 0)
	if err != nil {
		t.Fatalf("OnRemoveLiquidity: %v", err)
	}
	// growth-inside delta = 2^128 (one full X128 unit); fullMulX128(2^128, 1000) = 1000.
	want := uint256.NewInt(1000)
	if !owed.Eq(want) {
		t.Errorf("owed = %s, want %s", owed.Dec(), want.Dec())
	}
}

func TestOnAddLiquidityPreservesOwedRewardAcrossResize(t *testing.T) {
	pool := growth.New()
	l := New(nil)
	key := testKey()

	if err := l.OnAddLiquidity(pool, key, uint256.NewInt(0), uint256.NewInt(1000), false, false, 0); err != nil {
		t.Fatalf("initial add: %v", err)
	}

	pool.GlobalGrowth = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	// Double the liquidity: L=1000 -> L'=2000.
	if err := l.OnAddLiquidity(pool, key, uint256.NewInt(1000), uint256.NewInt(2000), false, false, 0); err != nil {
		t.Fatalf("resize add: %v", err)
	}

	// Owed reward at old liquidity was growthInside*1000 = 1000 (one X128 unit * 1000).
	// After resize it should still redeem to 1000 at the new liquidity of 2000:
	// owed' = (growthInside - last') * 2000 should equal 1000.
	owed, err := l.OnRemoveLiquidity(pool, key, uint256.NewInt(2000), 0)
	if err != nil {
		t.Fatalf("OnRemoveLiquidity: %v", err)
	}
	if !owed.Eq(uint256.NewInt(1000)) {
		t.Errorf("owed after resize = %s, want 1000 (reward preserved modulo rounding)", owed.Dec())
	}
}

func TestOnAddLiquidityInitializesGrowthOutsideAtOrBelowCurrentTick(t *testing.T) {
	pool := growth.New()
	pool.GlobalGrowth = uint256.NewInt(777)

	l := New(nil)
	key := testKey() // lower=-100, upper=100

	if err := l.OnAddLiquidity(pool, key, uint256.NewInt(0), uint256.NewInt(500), true, false, 0); err != nil {
		t.Fatalf("OnAddLiquidity: %v", err)
	}

	if !pool.GrowthOutside[-100].Eq(uint256.NewInt(777)) {
		t.Errorf("growth-outside[lower] = %s, want 777 (lower <= current tick)", pool.GrowthOutside[-100].Dec())
	}
}

func TestOnAddLiquidityDoesNotInitializeUpperAboveCurrentTick(t *testing.T) {
	pool := growth.New()
	pool.GlobalGrowth = uint256.NewInt(777)

	l := New(nil)
	key := testKey() // upper=100, current=0

	if err := l.OnAddLiquidity(pool, key, uint256.NewInt(0), uint256.NewInt(500), false, true, 0); err != nil {
		t.Fatalf("OnAddLiquidity: %v", err)
	}

	if _, ok := pool.GrowthOutside[100]; ok {
		t.Error("growth-outside[upper] should not be initialized when upper is above the current tick")
	}
}
