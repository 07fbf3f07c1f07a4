// Package configstore implements the pool configuration store: a
// controller-owned registry of (pair-key -> tick-spacing, bundle-fee) plus a
// parallel unlocked-fee map. The store is rewritten wholesale on every
// configuration change rather than patched in place, so a read-through LRU
// cache keyed by store index is cleared on every rewrite instead of
// invalidated entry by entry.
package configstore

import (
	"bytes"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/config"
)

// PairKey is the upper 27 bytes of keccak256(asset0 || asset1), asset0 <
// asset1.
type PairKey [27]byte

// ComputePairKey derives a pair's key from its two assets, requiring
// asset0 < asset1 for uniqueness of orientation.
func ComputePairKey(asset0, asset1 common.Address) (PairKey, error) {
	var key PairKey
	if bytes.Compare(asset0[:], asset1[:]) >= 0 {
		return key, apperr.ErrPairAssetsWrong
	}
	h := crypto.Keccak256(asset0[:], asset1[:])
	copy(key[:], h[:27])
	return key, nil
}

// Entry is one fixed-size row of the config store.
type Entry struct {
	Key         PairKey
	TickSpacing uint16
	BundleFee   uint32 // microbips, <= MaxBundleFeeMicrobips
}

const cacheSize = 4096

// ControllerAuth is the minimal surface ConfigurePool/RemovePool/
// BatchUpdatePools need from the access-control model: a way to reject a
// caller that isn't the current controller. Declared locally (rather than
// importing auth.Auth directly) the same way amm.PoolManager and hook's
// composer interface are — this package only needs one method, not the
// whole of auth.
type ControllerAuth interface {
	RequireController(caller common.Address) error
}

// Store holds the ordered entry list plus the unlocked-fee side map. It is
// safe for concurrent reads; writes (controller operations) take the
// exclusive lock.
type Store struct {
	mu             sync.RWMutex
	entries        []Entry
	unlockedFees   map[PairKey]uint32
	unlockedSet    map[PairKey]bool
	cache          *lru.Cache[int, Entry]
	back           Backing
	tickSpacingMin uint16
	tickSpacingMax uint16
}

// Backing persists the store's entries and unlocked-fee map; nil disables
// persistence (useful for tests).
type Backing interface {
	SaveEntries(entries []Entry) error
	SaveUnlockedFee(key PairKey, fee uint32) error
}

// New creates an empty store, with the tick-spacing range defaulting to
// config.Default()'s Node range; override with SetTickSpacingRange once the
// host's real configuration is known.
func New(back Backing) *Store {
	cache, _ := lru.New[int, Entry](cacheSize)
	def := config.Default()
	return &Store{
		unlockedFees:   make(map[PairKey]uint32),
		unlockedSet:    make(map[PairKey]bool),
		cache:          cache,
		back:           back,
		tickSpacingMin: def.Node.TickSpacingMin,
		tickSpacingMax: def.Node.TickSpacingMax,
	}
}

// SetTickSpacingRange overrides the tick-spacing bounds ConfigurePool and
// BatchUpdatePools validate against, matching the host AMM's actual
// configured range.
func (s *Store) SetTickSpacingRange(min, max uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickSpacingMin, s.tickSpacingMax = min, max
}

// Len returns the number of entries currently in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Lookup resolves (tick-spacing, bundle-fee) for a pair expected to sit at
// storeIndex with pair-key expectedKey. It fails hard (IndexMayHaveChanged /
// EntryKeyMismatch) if the store has been rewritten since the bundle was
// built, since a rewrite can shift every index after it.
func (s *Store) Lookup(expectedKey PairKey, storeIndex int) (tickSpacing uint16, bundleFee uint32, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cached, ok := s.cache.Get(storeIndex); ok {
		if cached.Key != expectedKey {
			return 0, 0, apperr.ErrEntryKeyMismatch
		}
		return cached.TickSpacing, cached.BundleFee, nil
	}

	if storeIndex < 0 || storeIndex >= len(s.entries) {
		return 0, 0, apperr.ErrIndexMayHaveChanged
	}
	e := s.entries[storeIndex]
	if e.Key != expectedKey {
		return 0, 0, apperr.ErrEntryKeyMismatch
	}
	s.cache.Add(storeIndex, e)
	return e.TickSpacing, e.BundleFee, nil
}

// ByKey scans the entry list for key, returning ok=false if no pool has ever
// been configured for it. Used by the introspection API, which only has a
// pair key to query with, not a store index.
func (s *Store) ByKey(key PairKey) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// UnlockedFee returns the configured unlocked-swap fee for key, or ok=false
// if it has never been set.
func (s *Store) UnlockedFee(key PairKey) (fee uint32, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.unlockedSet[key] {
		return 0, false
	}
	return s.unlockedFees[key], true
}

// Add appends a new entry (controller operation: configure-pool for a new
// pair).
func (s *Store) Add(e Entry, unlockedFee uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	s.unlockedFees[e.Key] = unlockedFee
	s.unlockedSet[e.Key] = true
	s.cache.Purge()
	return s.persistLocked()
}

// Replace overwrites the entry at index (controller operation: update an
// existing pool's fee or tick spacing).
func (s *Store) Replace(index int, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return apperr.ErrIndexMayHaveChanged
	}
	s.entries[index] = e
	s.cache.Purge()
	return s.persistLocked()
}

// Remove deletes the entry at index matching expectedKey, swap-with-last
// then shrink (controller operation: remove-pool). This is why stored
// indices can go stale between bundle construction and execution.
func (s *Store) Remove(expectedKey PairKey, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return apperr.ErrIndexMayHaveChanged
	}
	if s.entries[index].Key != expectedKey {
		return apperr.ErrEntryKeyMismatch
	}
	last := len(s.entries) - 1
	s.entries[index] = s.entries[last]
	s.entries = s.entries[:last]
	s.cache.Purge()
	return s.persistLocked()
}

// SetUnlockedFee sets or updates the unlocked-swap fee for key.
func (s *Store) SetUnlockedFee(key PairKey, fee uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlockedFees[key] = fee
	s.unlockedSet[key] = true
	if s.back != nil {
		return s.back.SaveUnlockedFee(key, fee)
	}
	return nil
}

// validateCaps enforces the §3 pool-configuration bounds: tick spacing
// within the host AMM's allowed range, bundle-fee and unlocked-fee each
// under their microbips ceiling.
func (s *Store) validateCaps(tickSpacing uint16, bundleFee, unlockedFee uint32) error {
	s.mu.RLock()
	min, max := s.tickSpacingMin, s.tickSpacingMax
	s.mu.RUnlock()
	if tickSpacing < min || tickSpacing > max {
		return apperr.ErrInvalidTickSpacing
	}
	if bundleFee > config.MaxBundleFeeMicrobips {
		return apperr.ErrFeeAboveMax
	}
	if unlockedFee > config.MaxUnlockedFeeMicrobips {
		return apperr.ErrUnlockFeeAboveMax
	}
	return nil
}

// keyAt returns the key currently stored at index, or ok=false if index is
// out of bounds.
func (s *Store) keyAt(index int) (PairKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.entries) {
		return PairKey{}, false
	}
	return s.entries[index].Key, true
}

func (s *Store) indexOf(key PairKey) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, e := range s.entries {
		if e.Key == key {
			return i, true
		}
	}
	return 0, false
}

// ConfigurePool is the controller-gated configure-pool operation: it
// derives the pair key from asset0/asset1, validates tick-spacing and fee
// caps, and either appends a new entry or updates the existing one for that
// pair. Requires a, the ControllerAuth caller is checked against.
func (s *Store) ConfigurePool(a ControllerAuth, caller, asset0, asset1 common.Address, tickSpacing uint16, bundleFee, unlockedFee uint32) (PairKey, error) {
	if err := a.RequireController(caller); err != nil {
		return PairKey{}, err
	}
	key, err := ComputePairKey(asset0, asset1)
	if err != nil {
		return PairKey{}, err
	}
	if err := s.validateCaps(tickSpacing, bundleFee, unlockedFee); err != nil {
		return PairKey{}, err
	}

	entry := Entry{Key: key, TickSpacing: tickSpacing, BundleFee: bundleFee}
	if idx, ok := s.indexOf(key); ok {
		if err := s.Replace(idx, entry); err != nil {
			return PairKey{}, err
		}
		return key, s.SetUnlockedFee(key, unlockedFee)
	}
	if err := s.Add(entry, unlockedFee); err != nil {
		return PairKey{}, err
	}
	return key, nil
}

// RemovePool is the controller-gated remove-pool operation.
func (s *Store) RemovePool(a ControllerAuth, caller common.Address, expectedKey PairKey, storeIndex int) error {
	if err := a.RequireController(caller); err != nil {
		return err
	}
	return s.Remove(expectedKey, storeIndex)
}

// PoolUpdate is one entry of a BatchUpdatePools call: the pair at Index is
// expected to still carry ExpectedKey (same staleness guard Remove uses),
// and is rewritten with the new tick spacing and fees.
type PoolUpdate struct {
	ExpectedKey PairKey
	Index       int
	TickSpacing uint16
	BundleFee   uint32
	UnlockedFee uint32
}

// BatchUpdatePools is the controller-gated batch-update-pools operation.
// expectedLen guards against the store having been resized (by any
// configure-pool/remove-pool since the batch was built) the same way a
// stale storeIndex does for a single lookup; every update is validated
// against the fee/tick caps before any of them is applied.
func (s *Store) BatchUpdatePools(a ControllerAuth, caller common.Address, expectedLen int, updates []PoolUpdate) error {
	if err := a.RequireController(caller); err != nil {
		return err
	}
	if s.Len() != expectedLen {
		return apperr.ErrIndexMayHaveChanged
	}
	for _, u := range updates {
		if err := s.validateCaps(u.TickSpacing, u.BundleFee, u.UnlockedFee); err != nil {
			return err
		}
	}
	for _, u := range updates {
		key, ok := s.keyAt(u.Index)
		if !ok {
			return apperr.ErrIndexMayHaveChanged
		}
		if key != u.ExpectedKey {
			return apperr.ErrEntryKeyMismatch
		}
		if err := s.Replace(u.Index, Entry{Key: u.ExpectedKey, TickSpacing: u.TickSpacing, BundleFee: u.BundleFee}); err != nil {
			return err
		}
		if err := s.SetUnlockedFee(u.ExpectedKey, u.UnlockedFee); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.back == nil {
		return nil
	}
	snapshot := make([]Entry, len(s.entries))
	copy(snapshot, s.entries)
	return s.back.SaveEntries(snapshot)
}
