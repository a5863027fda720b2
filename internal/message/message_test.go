package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
)

var cfg = binpkg.DefaultConfig()

func roundTrip(t *testing.T, msg Serializable) Message {
	t.Helper()
	data, err := Encode(msg, cfg)
	if err != nil {
		t.Fatalf("Encode %T: %v", msg, err)
	}
	got, err := Parse(msg.Type(), data, 0, cfg)
	if err != nil {
		t.Fatalf("Parse %T: %v", msg, err)
	}
	return got
}

func TestDataspaceRoundTrip(t *testing.T) {
	ds := NewSimpleDataspace([]uint64{10, 3}, []uint64{Unlimited, 3})
	got := roundTrip(t, ds).(*Dataspace)
	if got.Rank() != 2 || got.Dimensions[0] != 10 || got.Dimensions[1] != 3 {
		t.Errorf("dims = %v", got.Dimensions)
	}
	if got.MaxDims[0] != Unlimited || got.MaxDims[1] != 3 {
		t.Errorf("maxdims = %v", got.MaxDims)
	}
	if got.NumElements() != 30 {
		t.Errorf("NumElements = %d", got.NumElements())
	}

	scalar := roundTrip(t, NewScalarDataspace()).(*Dataspace)
	if scalar.SpaceType != DataspaceScalar || scalar.NumElements() != 1 || scalar.Max() != nil {
		t.Errorf("scalar = %+v", scalar)
	}
}

func TestDataspaceV1(t *testing.T) {
	data := []byte{1, 1, 1, 0, 0, 0, 0, 0}
	data = binary.LittleEndian.AppendUint64(data, 7)
	data = binary.LittleEndian.AppendUint64(data, ^uint64(0))
	msg, err := Parse(TypeDataspace, data, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	ds := msg.(*Dataspace)
	if ds.SpaceType != DataspaceSimple || ds.Dimensions[0] != 7 || ds.MaxDims[0] != Unlimited {
		t.Errorf("got %+v", ds)
	}
}

func TestDatatypeRoundTrip(t *testing.T) {
	interval := NewCompound(72, []CompoundMember{
		{Name: "name", ByteOffset: 0, Type: NewString(64, PadNullTerm, CharsetASCII)},
		{Name: "start", ByteOffset: 64, Type: NewFixedPoint(4, false)},
		{Name: "stop", ByteOffset: 68, Type: NewFixedPoint(4, false)},
	})
	types := []*Datatype{
		NewFixedPoint(1, true),
		NewFixedPoint(8, false),
		NewFloat(4),
		NewFloat(8),
		NewString(36, PadNullPad, CharsetASCII),
		NewVarLenString(CharsetUTF8, 8),
		NewOpaque(16, "uuid"),
		NewArray([]uint32{2}, NewFixedPoint(8, true)),
		NewEnum(NewFixedPoint(1, true), []string{"FALSE", "TRUE"}, [][]byte{{0}, {1}}),
		interval,
	}
	for _, dt := range types {
		got := roundTrip(t, dt).(*Datatype)
		if !got.Equal(dt) {
			t.Errorf("%s: round trip gave %s", dt, got)
		}
		if got.String() != dt.String() {
			t.Errorf("String() = %q, want %q", got.String(), dt.String())
		}
	}

	if NewFixedPoint(4, true).Equal(NewFixedPoint(4, false)) {
		t.Error("signed and unsigned int32 compare equal")
	}
	if NewFloat(8).Equal(NewFixedPoint(8, true)) {
		t.Error("float64 and int64 compare equal")
	}
}

func TestDatatypeAccessors(t *testing.T) {
	if !NewFixedPoint(2, true).Signed() || NewFixedPoint(2, false).Signed() {
		t.Error("Signed")
	}
	vs := NewVarLenString(CharsetUTF8, 8)
	if !vs.IsVarLenString() || !vs.IsString() || vs.CharSet() != CharsetUTF8 || vs.Size != 16 {
		t.Errorf("vlen string: %+v", vs)
	}
	s := NewString(8, PadSpacePad, CharsetUTF8)
	if s.StringPadding() != PadSpacePad || s.CharSet() != CharsetUTF8 {
		t.Errorf("string: pad=%d cset=%d", s.StringPadding(), s.CharSet())
	}
	f := NewFloat(8)
	if f.ExpBias != 1023 || f.MantSize != 52 || f.ClassBits>>8 != 63 {
		t.Errorf("float64 properties: %+v", f)
	}
}

func TestCompoundV1Member(t *testing.T) {
	// A version 1 compound with one int32 member named "x" at offset 0.
	var b []byte
	b = append(b, byte(ClassCompound)|1<<4, 1, 0, 0, 4, 0, 0, 0)
	b = append(b, 'x', 0, 0, 0, 0, 0, 0, 0)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, make([]byte, 28)...)
	b = append(b, byte(ClassFixedPoint)|1<<4, 0x08, 0, 0, 4, 0, 0, 0, 0, 0, 32, 0)

	dt, err := ParseDatatype(b, cfg)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := dt.Member("x")
	if !ok || m.ByteOffset != 0 || m.Type.String() != "int32" {
		t.Errorf("member = %+v", m)
	}
}

func TestAttributeRoundTrip(t *testing.T) {
	data := binary.LittleEndian.AppendUint64(nil, 1700000000)
	data = binary.LittleEndian.AppendUint64(data, 250000)
	attr := NewAttribute("timestamp", NewFixedPoint(8, true), NewSimpleDataspace([]uint64{2}, nil), data)
	got := roundTrip(t, attr).(*Attribute)
	if got.Name != "timestamp" || !bytes.Equal(got.Data, data) || got.Dataspace.NumElements() != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestAttributeV1(t *testing.T) {
	dt, _ := Encode(NewFixedPoint(2, true), cfg)
	ds := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	var b []byte
	b = append(b, 1, 0, 3, 0, byte(len(dt)), 0, byte(len(ds)), 0)
	b = append(b, 'a', 'b', 0, 0, 0, 0, 0, 0)
	b = append(b, dt...)
	b = append(b, make([]byte, pad8(len(dt))-len(dt))...)
	b = append(b, ds...)
	b = append(b, 0x2a, 0)

	msg, err := Parse(TypeAttribute, b, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	a := msg.(*Attribute)
	if a.Name != "ab" || !bytes.Equal(a.Data, []byte{0x2a, 0}) {
		t.Errorf("got %+v", a)
	}
}

func TestLinkRoundTrip(t *testing.T) {
	hard := roundTrip(t, NewHardLink("entry", 0x1234, 7)).(*Link)
	if !hard.IsHard() || hard.Name != "entry" || hard.ObjectAddress != 0x1234 || !hard.HasOrder || hard.CreationOrder != 7 {
		t.Errorf("hard = %+v", hard)
	}

	soft := roundTrip(t, &Link{LinkType: LinkSoft, Name: "alias", SoftPath: "/a/b"}).(*Link)
	if soft.SoftPath != "/a/b" || soft.HasOrder {
		t.Errorf("soft = %+v", soft)
	}

	ext := roundTrip(t, &Link{LinkType: LinkExternal, Name: "x", ExternalFile: "other.h5", ExternalPath: "/d"}).(*Link)
	if ext.ExternalFile != "other.h5" || ext.ExternalPath != "/d" {
		t.Errorf("external = %+v", ext)
	}

	long := string(bytes.Repeat([]byte("n"), 300))
	if got := roundTrip(t, NewHardLink(long, 1, 0)).(*Link); got.Name != long {
		t.Errorf("long name length %d", len(got.Name))
	}
}

func TestLinkInfoGroupInfo(t *testing.T) {
	li := NewLinkInfo()
	li.MaxCreationIndex = 12
	got := roundTrip(t, li).(*LinkInfo)
	if !got.Tracked() || got.Dense() || got.MaxCreationIndex != 12 {
		t.Errorf("link info = %+v", got)
	}
	gi := roundTrip(t, &GroupInfo{}).(*GroupInfo)
	if gi.Flags != 0 {
		t.Errorf("group info = %+v", gi)
	}
}

func TestFilterPipeline(t *testing.T) {
	fp := &FilterPipeline{Filters: []FilterInfo{
		{ID: FilterShuffle, ClientData: []uint32{4}},
		{ID: FilterDeflate, Flags: FilterOptional, ClientData: []uint32{6}},
		{ID: FilterSnappy, Name: "snappy"},
		{ID: FilterFletcher32},
	}}
	got := roundTrip(t, fp).(*FilterPipeline)
	if len(got.Filters) != 4 {
		t.Fatalf("filters = %+v", got.Filters)
	}
	if got.Filters[1].ClientData[0] != 6 || !got.Filters[1].Optional() {
		t.Errorf("deflate = %+v", got.Filters[1])
	}
	if got.Filters[2].Name != "snappy" || !got.Has(FilterSnappy) || got.Has(FilterSZIP) {
		t.Errorf("snappy = %+v", got.Filters[2])
	}
}

func TestFilterPipelineV1(t *testing.T) {
	b := []byte{1, 1, 0, 0, 0, 0, 0, 0}
	b = append(b, 1, 0, 8, 0, 0, 0, 1, 0)
	b = append(b, 'd', 'e', 'f', 'l', 'a', 't', 'e', 0)
	b = append(b, 9, 0, 0, 0, 0, 0, 0, 0)
	msg, err := Parse(TypeFilterPipeline, b, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	f := msg.(*FilterPipeline).Filters[0]
	if f.ID != FilterDeflate || f.Name != "deflate" || f.ClientData[0] != 9 {
		t.Errorf("got %+v", f)
	}
}

func TestFillValue(t *testing.T) {
	data, err := Encode(NewFillValue(nil), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{3, 0x0b}) {
		t.Errorf("default fill encoding = % x", data)
	}
	got := roundTrip(t, NewFillValue([]byte{1, 2, 3, 4})).(*FillValue)
	if !got.Defined || !bytes.Equal(got.Value, []byte{1, 2, 3, 4}) || got.AllocTime != AllocIncremental {
		t.Errorf("got %+v", got)
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	l := roundTrip(t, NewChunkedLayout(0x800, []uint32{1024, 2}, 8)).(*DataLayout)
	if l.Class != LayoutChunked || l.Address != 0x800 || l.ChunkElementSize != 8 || l.IndexType != ChunkIndexBTreeV1 {
		t.Errorf("chunked = %+v", l)
	}
	if len(l.ChunkDims) != 2 || l.ChunkDims[0] != 1024 {
		t.Errorf("chunk dims = %v", l.ChunkDims)
	}

	c := roundTrip(t, NewContiguousLayout(0x100, 80)).(*DataLayout)
	if c.Address != 0x100 || c.Size != 80 {
		t.Errorf("contiguous = %+v", c)
	}
	k := roundTrip(t, NewCompactLayout([]byte{1, 2})).(*DataLayout)
	if !bytes.Equal(k.CompactData, []byte{1, 2}) {
		t.Errorf("compact = %+v", k)
	}
}

func TestLayoutV4Extensible(t *testing.T) {
	b := []byte{4, byte(LayoutChunked), 0, 2, 2}
	b = binary.LittleEndian.AppendUint16(b, 100)
	b = binary.LittleEndian.AppendUint16(b, 4)
	b = append(b, byte(ChunkIndexExtensible), 32, 4, 4, 16, 10)
	b = binary.LittleEndian.AppendUint64(b, 0x4000)

	msg, err := Parse(TypeDataLayout, b, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	l := msg.(*DataLayout)
	if l.IndexType != ChunkIndexExtensible || l.Address != 0x4000 || l.ChunkDims[0] != 100 || l.EAMinElements != 16 || l.PageBits != 10 {
		t.Errorf("got %+v", l)
	}
	if _, err := Encode(l, cfg); !errors.Is(err, ErrUnsupported) {
		t.Errorf("writing extensible array index: %v", err)
	}
}

func TestContinuationUsesLengthSize(t *testing.T) {
	narrow := binpkg.Config{ByteOrder: binary.LittleEndian, OffsetSize: 8, LengthSize: 4}
	data, err := Encode(&Continuation{Offset: 0x1000, Length: 0x200}, narrow)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 12 {
		t.Fatalf("encoded %d bytes, want 12", len(data))
	}
	msg, err := Parse(TypeObjectHeaderContinuation, data, 0, narrow)
	if err != nil {
		t.Fatal(err)
	}
	if c := msg.(*Continuation); c.Offset != 0x1000 || c.Length != 0x200 {
		t.Errorf("got %+v", c)
	}
}

func TestUnknownAndShared(t *testing.T) {
	msg, err := Parse(TypeObjectComment, []byte("hi\x00"), 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	u, ok := msg.(*Unknown)
	if !ok || u.Type() != TypeObjectComment {
		t.Fatalf("got %T", msg)
	}
	if data, _ := Encode(u, cfg); !bytes.Equal(data, []byte("hi\x00")) {
		t.Errorf("unknown re-encoded as %q", data)
	}

	shared := append([]byte{3, 2}, binary.LittleEndian.AppendUint64(nil, 0x300)...)
	msg, err = Parse(TypeDatatype, shared, FlagShared, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if s := msg.(*Shared); s.Address != 0x300 || s.Type() != TypeDatatype {
		t.Errorf("shared = %+v", s)
	}
}

func TestTruncated(t *testing.T) {
	if _, err := Parse(TypeDataspace, []byte{2, 1}, 0, cfg); err == nil {
		t.Error("expected error for truncated dataspace")
	}
	if _, err := Parse(TypeDatatype, []byte{0x10, 0, 0}, 0, cfg); err == nil {
		t.Error("expected error for truncated datatype")
	}
}
