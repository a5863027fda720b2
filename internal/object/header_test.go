package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

var cfg = binpkg.DefaultConfig()

func datasetMessages() []message.Message {
	return []message.Message{
		message.NewSimpleDataspace([]uint64{100}, []uint64{message.Unlimited}),
		message.NewFixedPoint(2, true),
		message.NewFillValue(nil),
		message.NewChunkedLayout(0x400, []uint32{64}, 2),
		message.NewAttribute("units", message.NewString(2, message.PadNullPad, message.CharsetASCII),
			message.NewScalarDataspace(), []byte("mV")),
	}
}

func readBack(t *testing.T, data []byte, at uint64) *Header {
	t.Helper()
	var buf binpkg.Buffer
	buf.WriteAt(data, int64(at))
	h, err := Read(binpkg.NewBytesReader(buf.Bytes(), cfg), at)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestEncodeRoundTrip(t *testing.T) {
	msgs := datasetMessages()
	data, err := Encode(msgs, cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	size, err := Size(msgs, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != size {
		t.Errorf("Encode gave %d bytes, Size %d", len(data), size)
	}

	h := readBack(t, data, 48)
	if h.Version != 2 || h.Address != 48 || h.Size != uint64(len(data)) {
		t.Errorf("header = %+v", h)
	}
	if len(h.Messages) != len(msgs) {
		t.Fatalf("read %d messages, wrote %d", len(h.Messages), len(msgs))
	}
	if !h.IsDataset() || h.IsGroup() {
		t.Error("expected a dataset header")
	}
	if h.Dataspace().Dimensions[0] != 100 || h.Layout().Address != 0x400 {
		t.Errorf("dataspace %v layout %+v", h.Dataspace(), h.Layout())
	}
	if a := h.Attribute("units"); a == nil || string(a.Data) != "mV" {
		t.Errorf("units attribute = %+v", a)
	}
}

func TestEncodePadded(t *testing.T) {
	msgs := datasetMessages()
	min, _ := Size(msgs, cfg)
	// Every slack from zero upward, including the 1-3 byte gaps that
	// cannot hold a NIL message header.
	for extra := 0; extra < 12; extra++ {
		data, err := Encode(msgs, cfg, min+extra)
		if err != nil {
			t.Fatalf("extra %d: %v", extra, err)
		}
		if len(data) != min+extra {
			t.Fatalf("extra %d: got %d bytes", extra, len(data))
		}
		h := readBack(t, data, 0)
		if len(h.Messages) != len(msgs) {
			t.Errorf("extra %d: %d messages", extra, len(h.Messages))
		}
	}

	big, err := Encode(msgs, cfg, 70000)
	if err != nil {
		t.Fatal(err)
	}
	if len(big) != 70000 {
		t.Errorf("large slot: %d bytes", len(big))
	}
	if h := readBack(t, big, 0); h.Size != 70000 || len(h.Messages) != len(msgs) {
		t.Errorf("large slot header = %+v", h)
	}

	if _, err := Encode(msgs, cfg, min-1); !errors.Is(err, ErrTooLarge) {
		t.Errorf("undersized slot: %v", err)
	}
}

func TestChecksumMismatch(t *testing.T) {
	data, _ := Encode(datasetMessages(), cfg, 0)
	data[10] ^= 0x40
	if _, err := Read(binpkg.NewBytesReader(data, cfg), 0); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestSetRemove(t *testing.T) {
	h := &Header{Messages: datasetMessages()}
	h.Set(message.NewChunkedLayout(0x900, []uint32{64}, 2))
	if h.Layout().Address != 0x900 || len(h.Messages) != 5 {
		t.Errorf("Set replaced wrong message: %d messages", len(h.Messages))
	}
	n := h.Remove(func(m message.Message) bool {
		a, ok := m.(*message.Attribute)
		return ok && a.Name == "units"
	})
	if n != 1 || h.Attribute("units") != nil {
		t.Errorf("Remove = %d", n)
	}
}

func TestGroupHeaderLinks(t *testing.T) {
	msgs := []message.Message{
		message.NewLinkInfo(),
		&message.GroupInfo{},
		message.NewHardLink("b", 0x200, 1),
		message.NewHardLink("a", 0x100, 0),
	}
	data, err := Encode(msgs, cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	h := readBack(t, data, 0)
	if !h.IsGroup() || len(h.Links()) != 2 {
		t.Fatalf("links = %v", h.Links())
	}
	if l := h.Link("a"); l == nil || l.ObjectAddress != 0x100 {
		t.Errorf("link a = %+v", l)
	}
}

func TestV2Continuation(t *testing.T) {
	// Main chunk holds a dataspace and a continuation to an OCHK block
	// holding a datatype.
	var buf binpkg.Buffer
	const blockAt = 512

	dt, _ := message.Encode(message.NewFloat(8), cfg)
	blk := append([]byte{}, SignatureContinuation...)
	blk = append(blk, uint8(message.TypeDatatype))
	blk = binary.LittleEndian.AppendUint16(blk, uint16(len(dt)))
	blk = append(blk, 0)
	blk = append(blk, dt...)
	blk = binary.LittleEndian.AppendUint32(blk, binpkg.Lookup3Checksum(blk))
	buf.WriteAt(blk, blockAt)

	msgs := []message.Message{
		message.NewSimpleDataspace([]uint64{4}, nil),
		&message.Continuation{Offset: blockAt, Length: uint64(len(blk))},
	}
	data, err := Encode(msgs, cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf.WriteAt(data, 0)

	h, err := Read(binpkg.NewBytesReader(buf.Bytes(), cfg), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Continued || h.Datatype() == nil || h.Datatype().String() != "float64" {
		t.Errorf("continued=%v datatype=%v", h.Continued, h.Datatype())
	}
}

func TestReadV1(t *testing.T) {
	ds, _ := message.Encode(message.NewSimpleDataspace([]uint64{3}, nil), cfg)
	dt, _ := message.Encode(message.NewFixedPoint(4, true), cfg)

	var msgs []byte
	for _, m := range []struct {
		typ  message.Type
		body []byte
	}{{message.TypeDataspace, ds}, {message.TypeDatatype, dt}} {
		padded := make([]byte, (len(m.body)+7)&^7)
		copy(padded, m.body)
		msgs = binary.LittleEndian.AppendUint16(msgs, uint16(m.typ))
		msgs = binary.LittleEndian.AppendUint16(msgs, uint16(len(padded)))
		msgs = append(msgs, 0, 0, 0, 0)
		msgs = append(msgs, padded...)
	}
	data := []byte{1, 0, 2, 0}
	data = binary.LittleEndian.AppendUint32(data, 1)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(msgs)))
	data = append(data, 0, 0, 0, 0)
	data = append(data, msgs...)

	h, err := Read(binpkg.NewBytesReader(data, cfg), 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != 1 || h.RefCount != 1 || len(h.Messages) != 2 {
		t.Fatalf("header = %+v", h)
	}
	if h.Datatype().String() != "int32" || h.Dataspace().Dimensions[0] != 3 {
		t.Errorf("messages = %v %v", h.Datatype(), h.Dataspace())
	}
}

func TestSharedMessageCannotBeRewritten(t *testing.T) {
	msgs := []message.Message{&message.Shared{MsgType: message.TypeDatatype, Address: 8}}
	if _, err := Encode(msgs, cfg, 0); !errors.Is(err, message.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestInvalidHeader(t *testing.T) {
	if _, err := Read(binpkg.NewBytesReader(bytes.Repeat([]byte{9}, 32), cfg), 0); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("expected ErrInvalidHeader, got %v", err)
	}
}
