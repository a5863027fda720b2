package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestReaderFields(t *testing.T) {
	data := []byte{
		0x42,
		0x02, 0x01,
		0x04, 0x03, 0x02, 0x01,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}
	r := NewBytesReader(data, DefaultConfig())

	if v, err := r.ReadUint8(); err != nil || v != 0x42 {
		t.Fatalf("ReadUint8 = 0x%x, %v", v, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x0102 {
		t.Fatalf("ReadUint16 = 0x%x, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0x01020304 {
		t.Fatalf("ReadUint32 = 0x%x, %v", v, err)
	}
	if v, err := r.ReadOffset(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("ReadOffset = 0x%x, %v", v, err)
	}
	if r.Pos() != int64(len(data)) {
		t.Errorf("Pos = %d, want %d", r.Pos(), len(data))
	}
}

func TestReaderShortRead(t *testing.T) {
	r := NewBytesReader([]byte{1, 2}, DefaultConfig())
	_, err := r.ReadUint32()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReaderUndefinedNarrowOffset(t *testing.T) {
	cfg := Config{ByteOrder: binary.LittleEndian, OffsetSize: 4, LengthSize: 4}
	r := NewBytesReader([]byte{0xff, 0xff, 0xff, 0xff, 0x10, 0, 0, 0}, cfg)
	v, err := r.ReadOffset()
	if err != nil {
		t.Fatal(err)
	}
	if !IsUndefined(v) {
		t.Errorf("4-byte all-ones offset should map to Undefined, got 0x%x", v)
	}
	v, _ = r.ReadOffset()
	if v != 0x10 {
		t.Errorf("second offset = 0x%x, want 0x10", v)
	}
}

func TestReaderCString(t *testing.T) {
	r := NewBytesReader([]byte("abc\x00def"), DefaultConfig())
	s, err := r.ReadCString(16)
	if err != nil {
		t.Fatal(err)
	}
	if s != "abc" || r.Pos() != 4 {
		t.Errorf("got %q at %d", s, r.Pos())
	}
	if _, err := r.ReadCString(2); err == nil {
		t.Error("expected error for unterminated string")
	}
}

func TestReaderAlign(t *testing.T) {
	tests := []struct {
		pos, align, want int64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 4, 12},
		{5, 1, 5},
	}
	for _, tt := range tests {
		r := NewBytesReader(nil, DefaultConfig()).At(tt.pos)
		r.Align(tt.align)
		if r.Pos() != tt.want {
			t.Errorf("Align(%d) from %d = %d, want %d", tt.align, tt.pos, r.Pos(), tt.want)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	for _, size := range []int{2, 4, 8} {
		cfg := Config{ByteOrder: binary.LittleEndian, OffsetSize: size, LengthSize: size}
		w, buf := NewBufferWriter(cfg)
		w.WriteUint8(7)
		w.WriteUint16(0xbeef)
		w.WriteUint32(0xdeadbeef)
		w.WriteUint64(1 << 40)
		w.WriteOffset(0x1234)
		w.WriteLength(99)
		w.WriteOffset(Undefined)
		w.WriteZeros(3)

		r := NewBytesReader(buf.Bytes(), cfg)
		u8, _ := r.ReadUint8()
		u16, _ := r.ReadUint16()
		u32, _ := r.ReadUint32()
		u64, _ := r.ReadUint64()
		off, _ := r.ReadOffset()
		length, _ := r.ReadLength()
		undef, _ := r.ReadOffset()
		if u8 != 7 || u16 != 0xbeef || u32 != 0xdeadbeef || u64 != 1<<40 {
			t.Errorf("size %d: fixed fields mismatch", size)
		}
		if off != 0x1234 || length != 99 || !IsUndefined(undef) {
			t.Errorf("size %d: off=0x%x length=%d undef=0x%x", size, off, length, undef)
		}
		if want := 1 + 2 + 4 + 8 + 3*size + 3; buf.Len() != want {
			t.Errorf("size %d: wrote %d bytes, want %d", size, buf.Len(), want)
		}
	}
}

func TestBufferWriteAtGap(t *testing.T) {
	var b Buffer
	b.WriteAt([]byte{1, 2}, 4)
	b.WriteAt([]byte{9}, 0)
	if !bytes.Equal(b.Bytes(), []byte{9, 0, 0, 0, 1, 2}) {
		t.Errorf("got %v", b.Bytes())
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := Config{OffsetSize: 3, LengthSize: 8}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}

func TestLookup3Checksum(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0xdeadbeef},
		{"Four score and seven years ago", 0x17770551},
	}
	for _, tt := range tests {
		if got := Lookup3Checksum([]byte(tt.in)); got != tt.want {
			t.Errorf("Lookup3Checksum(%q) = 0x%08x, want 0x%08x", tt.in, got, tt.want)
		}
	}
}

func TestLookup3LengthsDiffer(t *testing.T) {
	seen := make(map[uint32]int)
	for n := 0; n <= 24; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}
		seen[Lookup3Checksum(data)] = n
	}
	if len(seen) != 25 {
		t.Errorf("expected 25 distinct checksums, got %d", len(seen))
	}
}

func TestFletcher32(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
	}{
		{[]byte{}, 0},
		{[]byte{0x01, 0x02}, 0x01020102},
		{[]byte{0x01, 0x02, 0x03}, 0x05040402},
	}
	for _, tt := range tests {
		if got := Fletcher32(tt.in); got != tt.want {
			t.Errorf("Fletcher32(%v) = 0x%08x, want 0x%08x", tt.in, got, tt.want)
		}
	}

	// Folding must agree with a straightforward modular sum on long input.
	long := make([]byte, 5000)
	for i := range long {
		long[i] = byte(i * 7)
	}
	var s1, s2 uint32
	for i := 0; i+1 < len(long); i += 2 {
		s1 = (s1 + (uint32(long[i])<<8 | uint32(long[i+1]))) % 65535
		s2 = (s2 + s1) % 65535
	}
	got := Fletcher32(long)
	if got%65536%65535 != s1 || (got>>16)%65535 != s2 {
		t.Errorf("Fletcher32 long input = 0x%08x, want sums %d/%d", got, s1, s2)
	}
}
