// Package nonce implements per-signer standing-order nonce bitmaps: 256
// nonces per word, word index nonce>>8, bit nonce&0xff. A cleared bit means
// the nonce is available; setting it is one-way (there is no un-invalidate).
package nonce

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"

	"github.com/angstrom-labs/angstrom-core/apperr"
)

// Backing persists individual 256-bit nonce words keyed by (signer, word
// index); Store calls it lazily so callers that never touch persistence
// (tests, dry runs) can pass nil.
type Backing interface {
	LoadWord(signer common.Address, word uint64) (*bitset.BitSet, error)
	SaveWord(signer common.Address, word uint64, bits *bitset.BitSet) error
}

type signerWords map[uint64]*bitset.BitSet

// Store tracks nonce bitmaps for every signer seen so far, in memory, with
// each 256-nonce word loaded from Backing on first touch.
type Store struct {
	mu    sync.Mutex
	words map[common.Address]signerWords
	back  Backing
}

// New creates an empty nonce store; back may be nil for an in-memory-only
// store.
func New(back Backing) *Store {
	return &Store{
		words: make(map[common.Address]signerWords),
		back:  back,
	}
}

func (s *Store) wordFor(signer common.Address, word uint64) (*bitset.BitSet, error) {
	sw, ok := s.words[signer]
	if !ok {
		sw = make(signerWords)
		s.words[signer] = sw
	}
	b, ok := sw[word]
	if ok {
		return b, nil
	}
	if s.back != nil {
		loaded, err := s.back.LoadWord(signer, word)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			sw[word] = loaded
			return loaded, nil
		}
	}
	b = bitset.New(256)
	sw[word] = b
	return b, nil
}

// Word returns a copy of signer's nonce bitmap word, for off-chain order
// builders (via the introspection API) choosing a fresh nonce.
func (s *Store) Word(signer common.Address, word uint64) (*bitset.BitSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.wordFor(signer, word)
	if err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

// IsUsed reports whether nonce has already been marked used for signer.
func (s *Store) IsUsed(signer common.Address, n uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.wordFor(signer, n>>8)
	if err != nil {
		return false, err
	}
	return b.Test(uint(n & 0xff)), nil
}

// MarkUsed sets the bit for nonce, failing with ErrNonceReuse if it was
// already set. Must be called before any settlement mutation for the order
// that claims this nonce.
func (s *Store) MarkUsed(signer common.Address, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	word := n >> 8
	b, err := s.wordFor(signer, word)
	if err != nil {
		return err
	}
	bit := uint(n & 0xff)
	if b.Test(bit) {
		return apperr.ErrNonceReuse
	}
	b.Set(bit)
	if s.back != nil {
		return s.back.SaveWord(signer, word, b)
	}
	return nil
}

// Invalidate marks nonce used without requiring an order; this is the
// signer-initiated cancellation entry point. It is idempotent: invalidating
// an already-used nonce is not an error.
func (s *Store) Invalidate(signer common.Address, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	word := n >> 8
	b, err := s.wordFor(signer, word)
	if err != nil {
		return err
	}
	b.Set(uint(n & 0xff))
	if s.back != nil {
		return s.back.SaveWord(signer, word, b)
	}
	return nil
}
