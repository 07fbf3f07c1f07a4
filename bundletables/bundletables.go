// Package bundletables wraps the raw asset and pair lists a bundle decodes
// into, validating ordering/uniqueness and resolving each pair to its
// configured pool parameters. The PADE codec itself performs no ordering
// checks; this package is where those invariants are enforced.
package bundletables

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"

	"github.com/angstrom-labs/angstrom-core/apperr"
	"github.com/angstrom-labs/angstrom-core/configstore"
	"github.com/angstrom-labs/angstrom-core/pade"
)

// Assets validates and wraps a decoded asset list.
type Assets struct {
	list []pade.Asset
}

// NewAssets validates that assets is strictly ascending by address (and
// therefore unique), returning apperr.ErrAssetsOutOfOrderOrNotUnique
// otherwise.
func NewAssets(assets []pade.Asset) (*Assets, error) {
	for i := 1; i < len(assets); i++ {
		if bytes.Compare(assets[i-1].Address[:], assets[i].Address[:]) >= 0 {
			return nil, apperr.ErrAssetsOutOfOrderOrNotUnique
		}
	}
	return &Assets{list: assets}, nil
}

// Len returns the number of assets in the table.
func (a *Assets) Len() int { return len(a.list) }

// At returns the asset at index, or apperr.ErrReaderOutOfBounds if index is
// out of range; NewPairs resolves a Pair's index0/index1 fields through here.
func (a *Assets) At(index uint16) (pade.Asset, error) {
	if int(index) >= len(a.list) {
		return pade.Asset{}, apperr.ErrReaderOutOfBounds
	}
	return a.list[index], nil
}

// Address is a convenience wrapper around At that returns just the address.
func (a *Assets) Address(index uint16) (common.Address, error) {
	asset, err := a.At(index)
	if err != nil {
		return common.Address{}, err
	}
	return asset.Address, nil
}

// ResolvedPair is a pair after both ordering validation and config-store
// resolution: asset0/asset1, the cached uniform price, and the pool's
// tick-spacing and bundle-fee at the time of resolution.
type ResolvedPair struct {
	Asset0, Asset1     common.Address
	Raw                pade.Pair // carries Price1Over0 and the cached InversePrice0Over1
	TickSpacing        uint16
	BundleFeeMicrobips uint32
}

// Pairs validates and wraps a decoded pair list, resolved against a config
// store.
type Pairs struct {
	list []ResolvedPair
}

// NewPairs validates that pairs is strictly ascending by (index0, index1)
// with index0 < index1 for each entry, then resolves each against the
// config store by its carried store-index, rejecting stale indices.
func NewPairs(pairs []pade.Pair, assets *Assets, cfg *configstore.Store) (*Pairs, error) {
	out := make([]ResolvedPair, 0, len(pairs))
	for i, p := range pairs {
		if p.Index0 >= p.Index1 {
			return nil, apperr.ErrOutOfOrderOrDuplicatePairs
		}
		if i > 0 {
			prev := pairs[i-1]
			if p.Index0 < prev.Index0 || (p.Index0 == prev.Index0 && p.Index1 <= prev.Index1) {
				return nil, apperr.ErrOutOfOrderOrDuplicatePairs
			}
		}

		asset0, err := assets.Address(p.Index0)
		if err != nil {
			return nil, err
		}
		asset1, err := assets.Address(p.Index1)
		if err != nil {
			return nil, err
		}

		key, err := configstore.ComputePairKey(asset0, asset1)
		if err != nil {
			return nil, err
		}
		tickSpacing, fee, err := cfg.Lookup(key, int(p.StoreIndex))
		if err != nil {
			return nil, err
		}

		out = append(out, ResolvedPair{
			Asset0:             asset0,
			Asset1:             asset1,
			Raw:                p,
			TickSpacing:        tickSpacing,
			BundleFeeMicrobips: fee,
		})
	}
	return &Pairs{list: out}, nil
}

// Len returns the number of pairs in the table.
func (p *Pairs) Len() int { return len(p.list) }

// At returns the resolved pair at index.
func (p *Pairs) At(index uint16) (ResolvedPair, error) {
	if int(index) >= len(p.list) {
		return ResolvedPair{}, apperr.ErrReaderOutOfBounds
	}
	return p.list[index], nil
}
