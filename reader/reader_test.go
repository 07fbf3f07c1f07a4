package reader

import "testing"

func TestPrimitives(t *testing.T) {
	buf := []byte{
		0x01,             // U8
		0x01, 0x02,       // U16
		0x01, 0x02, 0x03, // U24
	}
	r := New(buf)

	v8, err := r.U8()
	if err != nil || v8 != 0x01 {
		t.Fatalf("U8 = %d, %v; want 1, nil", v8, err)
	}
	v16, err := r.U16()
	if err != nil || v16 != 0x0102 {
		t.Fatalf("U16 = %d, %v; want 258, nil", v16, err)
	}
	v24, err := r.U24()
	if err != nil || v24 != 0x010203 {
		t.Fatalf("U24 = %d, %v; want 66051, nil", v24, err)
	}
	if err := r.RequireAtEnd(); err != nil {
		t.Fatalf("RequireAtEnd: %v", err)
	}
}

func TestU128RoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	buf[15] = 0xff
	buf[14] = 0x01
	r := New(buf)
	v, err := r.U128()
	if err != nil {
		t.Fatalf("U128: %v", err)
	}
	if v.Uint64() != 0x1ff {
		t.Errorf("U128 = %d, want %d", v.Uint64(), 0x1ff)
	}
}

func TestI24SignExtension(t *testing.T) {
	cases := []struct {
		bytes [3]byte
		want  int32
	}{
		{[3]byte{0x00, 0x00, 0x01}, 1},
		{[3]byte{0xff, 0xff, 0xff}, -1},
		{[3]byte{0x80, 0x00, 0x00}, -8388608},
		{[3]byte{0x7f, 0xff, 0xff}, 8388607},
	}
	for _, c := range cases {
		r := New(c.bytes[:])
		got, err := r.I24()
		if err != nil {
			t.Fatalf("I24: %v", err)
		}
		if got != c.want {
			t.Errorf("I24(%v) = %d, want %d", c.bytes, got, c.want)
		}
	}
}

func TestRequireAtEndCatchesLeftoverBytes(t *testing.T) {
	r := New([]byte{0x01, 0x02})
	if _, err := r.U8(); err != nil {
		t.Fatalf("U8: %v", err)
	}
	if err := r.RequireAtEnd(); err == nil {
		t.Error("RequireAtEnd should fail with a trailing byte")
	}
}

func TestReadPastEndFails(t *testing.T) {
	r := New([]byte{0x01})
	if _, err := r.U16(); err == nil {
		t.Error("U16 should fail reading past the end of a 1-byte buffer")
	}
}

func TestLengthPrefixedScopesSubReader(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x02, 0xaa, 0xbb, 0xcc}
	r := New(buf)
	sub, err := r.LengthPrefixed()
	if err != nil {
		t.Fatalf("LengthPrefixed: %v", err)
	}
	if sub.Len() != 2 {
		t.Fatalf("sub.Len() = %d, want 2", sub.Len())
	}
	b, err := sub.U8()
	if err != nil || b != 0xaa {
		t.Fatalf("sub.U8() = %d, %v; want 0xaa, nil", b, err)
	}
	// the outer reader's cursor should sit right after the 2-byte region
	remaining := r.Remaining()
	if remaining != 1 {
		t.Errorf("outer remaining = %d, want 1", remaining)
	}
}
