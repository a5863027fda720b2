package filter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

func sample(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i / 7)
	}
	return b
}

func TestFilterRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
	}{
		{"deflate0", NewDeflate([]uint32{0})},
		{"deflate9", NewDeflate([]uint32{9})},
		{"shuffle4", NewShuffle(nil, 4)},
		{"shuffle8", NewShuffle([]uint32{8}, 2)},
		{"fletcher32", Fletcher32{}},
		{"snappy", Snappy{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, n := range []int{0, 1, 7, 64, 4099} {
				in := sample(n)
				enc, err := tt.f.Encode(in)
				if err != nil {
					t.Fatal(err)
				}
				dec, err := tt.f.Decode(enc)
				if err != nil {
					t.Fatalf("n=%d: %v", n, err)
				}
				if !bytes.Equal(dec, in) {
					t.Errorf("n=%d: round trip mismatch", n)
				}
			}
		})
	}
}

func TestShuffleLayout(t *testing.T) {
	in := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x11, 0x12, 0x13, 0x14,
		0x21, 0x22, 0x23, 0x24,
	}
	want := []byte{
		0x01, 0x11, 0x21,
		0x02, 0x12, 0x22,
		0x03, 0x13, 0x23,
		0x04, 0x14, 0x24,
	}
	got, _ := NewShuffle([]uint32{4}, 0).Encode(in)
	if !bytes.Equal(got, want) {
		t.Errorf("shuffled = % x", got)
	}
}

func TestDeflateCompresses(t *testing.T) {
	in := bytes.Repeat([]byte("abcd"), 1000)
	out, err := NewDeflate([]uint32{6}).Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) >= len(in)/10 {
		t.Errorf("compressed %d bytes to %d", len(in), len(out))
	}
	if _, err := NewDeflate(nil).Decode([]byte("not zlib")); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestFletcher32(t *testing.T) {
	data := []byte("hello, fletcher")
	enc, _ := Fletcher32{}.Encode(data)
	if got := binary.LittleEndian.Uint32(enc[len(data):]); got != binpkg.Fletcher32(data) {
		t.Errorf("stored checksum 0x%08x", got)
	}

	enc[0] ^= 1
	if _, err := (Fletcher32{}).Decode(enc); !errors.Is(err, ErrChecksum) {
		t.Errorf("corrupt chunk: %v", err)
	}
	enc[0] ^= 1

	swapped := append([]byte(nil), data...)
	swapped = binary.LittleEndian.AppendUint32(swapped, swapHalves(binpkg.Fletcher32(data)))
	if _, err := (Fletcher32{}).Decode(swapped); err != nil {
		t.Errorf("swapped checksum rejected: %v", err)
	}
	if _, err := (Fletcher32{}).Decode([]byte{1, 2}); err == nil {
		t.Error("short chunk accepted")
	}
}

func TestPipeline(t *testing.T) {
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{
		Info(message.FilterShuffle, 4),
		Info(message.FilterDeflate, 4),
		Info(message.FilterFletcher32),
	}}
	p, err := NewPipeline(fp, 4)
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 3 || p.Empty() {
		t.Fatalf("Len = %d", p.Len())
	}
	if names := p.Names(); names[0] != "shuffle" || names[1] != "deflate" || names[2] != "fletcher32" {
		t.Errorf("Names = %v", names)
	}

	in := sample(4096)
	enc, mask, err := p.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if mask != 0 {
		t.Errorf("mask = %b", mask)
	}
	dec, err := p.Decode(enc, mask)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Error("pipeline round trip mismatch")
	}
}

func TestPipelineMask(t *testing.T) {
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{Info(message.FilterDeflate, 1)}}
	p, _ := NewPipeline(fp, 1)
	raw := sample(100)
	got, err := p.Decode(raw, 1)
	if err != nil || !bytes.Equal(got, raw) {
		t.Errorf("masked filter was applied: %v", err)
	}
}

func TestOptionalAndUnsupported(t *testing.T) {
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: 32015, Flags: message.FilterOptional},
		Info(message.FilterDeflate, 1),
	}}
	p, err := NewPipeline(fp, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 1 {
		t.Fatalf("optional filter kept: %d", p.Len())
	}
	_, mask, err := p.Encode(sample(10))
	if err != nil {
		t.Fatal(err)
	}
	if mask != 1 {
		t.Errorf("mask = %b, want the missing optional filter skipped", mask)
	}

	_, err = NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{{ID: message.FilterSZIP}}}, 1)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("szip: %v", err)
	}
	if NameOf(message.FilterSnappy) != "snappy" || NameOf(999) != "filter999" {
		t.Error("NameOf")
	}
	if fi := Info(message.FilterSnappy); fi.Name != "snappy" || !fi.Optional() {
		t.Errorf("snappy info = %+v", fi)
	}
}
