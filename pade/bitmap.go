package pade

import "github.com/angstrom-labs/angstrom-core/reader"

// variantBitmap packs the selectors of every enum-typed field of a product
// struct into one little-endian front bitmap: field selectors are assigned
// bit ranges in declaration order, LSB of the bitmap first. Width sums
// across all structs in this package comfortably fit in 32 bits, so a
// single accumulator is all a reader needs.
type variantBitmap struct {
	value  uint32
	bitPos uint
}

func readVariantBitmap(r *reader.Reader, totalBits uint) (*variantBitmap, error) {
	width := (totalBits + 7) / 8
	var value uint32
	for i := uint(0); i < width; i++ {
		b, err := r.U8()
		if err != nil {
			return nil, err
		}
		value |= uint32(b) << (8 * i)
	}
	return &variantBitmap{value: value}, nil
}

// next consumes the next `bits`-wide selector from the bitmap.
func (b *variantBitmap) next(bits uint) uint32 {
	mask := uint32(1)<<bits - 1
	v := (b.value >> b.bitPos) & mask
	b.bitPos += bits
	return v
}

func (b *variantBitmap) nextBool() bool {
	return b.next(1) != 0
}
