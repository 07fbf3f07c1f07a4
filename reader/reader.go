// Package reader implements a single-pass calldata cursor: fixed-width
// big-endian primitive decoders and length-prefixed sub-region bounds over
// an immutable byte slice. The reader never copies the buffer: accessors
// return a scalar value, a sub-slice view into the original buffer, or
// (LengthPrefixed) a new Reader over such a view; the wide integer reads
// allocate a fresh *uint256.Int.
package reader

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/angstrom-labs/angstrom-core/apperr"
)

// Reader is a cursor (base, offset) over an immutable byte slice.
type Reader struct {
	buf    []byte
	offset int
}

// New wraps buf for sequential reading starting at offset 0.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int { return r.offset }

// Len returns the total length of the wrapped buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.offset }

// AtEnd reports whether the cursor has consumed the entire buffer.
func (r *Reader) AtEnd() bool { return r.offset == len(r.buf) }

// RequireAtEnd fails if the cursor disagrees with the declared end of the
// buffer: leftover or missing bytes are both decode errors.
func (r *Reader) RequireAtEnd() error {
	if !r.AtEnd() {
		return fmt.Errorf("%w: %d bytes remaining of %d", apperr.ErrReaderNotAtEnd, r.Remaining(), len(r.buf))
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", apperr.ErrReaderOutOfBounds, n, r.offset, len(r.buf))
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

// U8 reads a single unsigned byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Bool reads a 1-bit enum encoded as a single byte: 0 = false, 1 = true.
func (r *Reader) Bool() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// U16 reads a big-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// U24 reads a big-endian 3-byte unsigned integer into a uint32.
func (r *Reader) U24() (uint32, error) {
	b, err := r.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// U40 reads a big-endian 5-byte unsigned integer into a uint64.
func (r *Reader) U40() (uint64, error) {
	b, err := r.take(5)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// U128 reads a big-endian 16-byte unsigned integer.
func (r *Reader) U128() (*uint256.Int, error) {
	return r.uintN(16)
}

// U160 reads a big-endian 20-byte unsigned integer (e.g. a checksum field
// that is not an address).
func (r *Reader) U160() (*uint256.Int, error) {
	return r.uintN(20)
}

// U256 reads a big-endian 32-byte unsigned integer.
func (r *Reader) U256() (*uint256.Int, error) {
	return r.uintN(32)
}

func (r *Reader) uintN(n int) (*uint256.Int, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

// I24 reads a big-endian 3-byte two's-complement signed integer (tick
// indices).
func (r *Reader) I24() (int32, error) {
	u, err := r.U24()
	if err != nil {
		return 0, err
	}
	v := int32(u)
	if u&0x800000 != 0 {
		v -= 1 << 24
	}
	return v, nil
}

// Address reads a 20-byte address.
func (r *Reader) Address() ([20]byte, error) {
	var out [20]byte
	b, err := r.take(20)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// FixedBytes reads exactly n raw bytes.
func (r *Reader) FixedBytes(n int) ([]byte, error) {
	return r.take(n)
}

// LengthPrefixed reads a 3-byte big-endian byte length followed by that many
// raw bytes, returning a Reader scoped to just that sub-region. This is the
// framing list-typed and variable-length fields share. The length ceiling
// is 2^24-1, enforced implicitly by U24's width.
func (r *Reader) LengthPrefixed() (*Reader, error) {
	n, err := r.U24()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return New(b), nil
}
