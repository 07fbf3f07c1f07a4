package amm

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MemPool is an in-memory PoolManager used by tests and local development.
// It implements tick crossing with linear net-liquidity accounting, same as
// a real concentrated-liquidity pool, without any of the host chain's
// storage-layout concerns.
type MemPool struct {
	mu       sync.Mutex
	pools    map[PoolID]*memPoolState
	accounts map[common.Address]*uint256.Int
}

type memPoolState struct {
	asset0, asset1  common.Address
	tick            int32
	pendingSwapTick *int32
	liquidity       *uint256.Int
	liquidityNet    map[int32]*big.Int
	balances        map[common.Address]*uint256.Int
	positions       map[string]*uint256.Int
}

// NewMemPool creates an empty pool manager.
func NewMemPool() *MemPool {
	return &MemPool{
		pools:    make(map[PoolID]*memPoolState),
		accounts: make(map[common.Address]*uint256.Int),
	}
}

// CreditAccount seeds the host accounting ledger for asset, as if a prior
// settle (or an initial deposit) had already happened; tests use this to
// give TakeAsset something to pull.
func (m *MemPool) CreditAccount(asset common.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.accounts[asset]
	if bal == nil {
		bal = uint256.NewInt(0)
	}
	m.accounts[asset] = new(uint256.Int).Add(bal, amount)
}

// TakeAsset implements Accounting.
func (m *MemPool) TakeAsset(asset common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.accounts[asset]
	if bal == nil {
		bal = uint256.NewInt(0)
	}
	if bal.Lt(amount) {
		return fmt.Errorf("amm: insufficient host accounting balance for take")
	}
	m.accounts[asset] = new(uint256.Int).Sub(bal, amount)
	return nil
}

// AccountBalance returns the host accounting ledger's current balance for
// asset; tests use this to check TakeAsset/SettleAsset bookkeeping without
// threading a balance getter through the Accounting interface itself.
func (m *MemPool) AccountBalance(asset common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.accounts[asset]
	if bal == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(bal)
}

// SettleAsset implements Accounting.
func (m *MemPool) SettleAsset(asset common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.accounts[asset]
	if bal == nil {
		bal = uint256.NewInt(0)
	}
	m.accounts[asset] = new(uint256.Int).Add(bal, amount)
	return nil
}

// CreatePool registers a pool with an initial tick and liquidity; tests use
// this to seed state before exercising the swap driver or growth
// accumulator against it.
func (m *MemPool) CreatePool(id PoolID, asset0, asset1 common.Address, tick int32, liquidity *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[id] = &memPoolState{
		asset0:       asset0,
		asset1:       asset1,
		tick:         tick,
		liquidity:    liquidity,
		liquidityNet: make(map[int32]*big.Int),
		balances:     make(map[common.Address]*uint256.Int),
		positions:    make(map[string]*uint256.Int),
	}
}

// SetLiquidityNet seeds the signed net-liquidity recorded at an initialized
// tick.
func (m *MemPool) SetLiquidityNet(id PoolID, tick int32, net *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[id].liquidityNet[tick] = net
}

func (m *MemPool) state(id PoolID) (*memPoolState, error) {
	s, ok := m.pools[id]
	if !ok {
		return nil, fmt.Errorf("amm: unknown pool %x", id)
	}
	return s, nil
}

func (m *MemPool) Assets(id PoolID) (common.Address, common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return s.asset0, s.asset1, nil
}

func (m *MemPool) CurrentTick(id PoolID) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return 0, err
	}
	return s.tick, nil
}

func (m *MemPool) CurrentLiquidity(id PoolID) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return nil, err
	}
	return s.liquidity, nil
}

func (m *MemPool) LiquidityNet(id PoolID, tick int32) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return nil, err
	}
	net, ok := s.liquidityNet[tick]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(net), nil
}

func (m *MemPool) InitializedTicksBetween(id PoolID, from, to int32) ([]int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return nil, err
	}
	var ticks []int32
	for t := range s.liquidityNet {
		if from < to {
			if t > from && t <= to {
				ticks = append(ticks, t)
			}
		} else {
			if t < from && t >= to {
				ticks = append(ticks, t)
			}
		}
	}
	if from < to {
		sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	} else {
		sort.Slice(ticks, func(i, j int) bool { return ticks[i] > ticks[j] })
	}
	return ticks, nil
}

// Swap has no pricing curve: left to itself it reports the pool unmoved. A
// test that wants to exercise tick-crossing calls SetPendingSwapTick first,
// which Swap consumes once to report (and apply) that tick move.
func (m *MemPool) Swap(id PoolID, zeroForOne bool, amountIn *uint256.Int) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return 0, 0, err
	}
	before := s.tick
	if s.pendingSwapTick != nil {
		s.tick = *s.pendingSwapTick
		s.pendingSwapTick = nil
	}
	return before, s.tick, nil
}

// SetTick lets a test set the pool's tick directly, without going through a
// simulated swap.
func (m *MemPool) SetTick(id PoolID, tick int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[id].tick = tick
}

// SetPendingSwapTick arms the next call to Swap to move the pool from its
// current tick to target and report that transition, simulating what a real
// pricing curve would have computed.
func (m *MemPool) SetPendingSwapTick(id PoolID, target int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := target
	m.pools[id].pendingSwapTick = &t
}

// SetLiquidity lets a test set the pool's current liquidity directly.
func (m *MemPool) SetLiquidity(id PoolID, liquidity *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[id].liquidity = liquidity
}

func (m *MemPool) Take(id PoolID, asset common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return err
	}
	bal := s.balances[asset]
	if bal == nil {
		bal = uint256.NewInt(0)
	}
	if bal.Lt(amount) {
		return fmt.Errorf("amm: insufficient pool balance for take")
	}
	s.balances[asset] = new(uint256.Int).Sub(bal, amount)
	return nil
}

func (m *MemPool) Settle(id PoolID, asset common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return err
	}
	bal := s.balances[asset]
	if bal == nil {
		bal = uint256.NewInt(0)
	}
	s.balances[asset] = new(uint256.Int).Add(bal, amount)
	return nil
}

func positionKey(owner common.Address, lower, upper int32, salt [32]byte) string {
	return fmt.Sprintf("%s-%d-%d-%x", owner.Hex(), lower, upper, salt)
}

func (m *MemPool) PositionLiquidity(id PoolID, owner common.Address, lower, upper int32, salt [32]byte) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.state(id)
	if err != nil {
		return nil, err
	}
	l, ok := s.positions[positionKey(owner, lower, upper, salt)]
	if !ok {
		return uint256.NewInt(0), nil
	}
	return l, nil
}

// SetPositionLiquidity lets a test seed a position's liquidity directly.
func (m *MemPool) SetPositionLiquidity(id PoolID, owner common.Address, lower, upper int32, salt [32]byte, liquidity *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[id].positions[positionKey(owner, lower, upper, salt)] = liquidity
}
