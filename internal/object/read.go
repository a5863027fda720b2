package object

import (
	"bytes"
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// Version 1 prefix: version, reserved, message count(2), reference
// count(4), header size(4), reserved(4). Messages are 8-byte aligned with
// an 8-byte message header: type(2), size(2), flags(1), reserved(3).
const v1PrefixSize = 16

// block is a continuation block still to be read.
type block struct {
	offset, length uint64
}

func readV1(r *binpkg.Reader, address uint64) (*Header, error) {
	prefix, err := r.At(int64(address)).ReadBytes(v1PrefixSize)
	if err != nil {
		return nil, err
	}
	h := &Header{
		Version:  1,
		Address:  address,
		RefCount: binary.LittleEndian.Uint32(prefix[4:]),
	}
	size := uint64(binary.LittleEndian.Uint32(prefix[8:]))
	h.Size = v1PrefixSize + size

	d := decoder{r: r, h: h, seen: map[uint64]bool{}}
	pending := []block{{address + v1PrefixSize, size}}
	for len(pending) > 0 {
		b := pending[0]
		pending = pending[1:]
		more, err := d.v1Messages(b)
		if err != nil {
			return nil, err
		}
		pending = append(pending, more...)
	}
	return h, nil
}

type decoder struct {
	r    *binpkg.Reader
	h    *Header
	seen map[uint64]bool
}

func (d *decoder) v1Messages(b block) ([]block, error) {
	if d.seen[b.offset] {
		return nil, fmt.Errorf("%w: continuation loop at %d", ErrInvalidHeader, b.offset)
	}
	d.seen[b.offset] = true

	data, err := d.r.At(int64(b.offset)).ReadBytes(int(b.length))
	if err != nil {
		return nil, err
	}
	var more []block
	for pos := 0; pos+8 <= len(data); {
		typ := message.Type(binary.LittleEndian.Uint16(data[pos:]))
		size := int(binary.LittleEndian.Uint16(data[pos+2:]))
		flags := data[pos+4]
		pos += 8
		if pos+size > len(data) {
			return nil, fmt.Errorf("%w: message 0x%04x overruns block", ErrInvalidHeader, uint16(typ))
		}
		body := data[pos : pos+size]
		pos += (size + 7) &^ 7

		cont, err := d.add(typ, body, flags)
		if err != nil {
			return nil, err
		}
		if cont != nil {
			more = append(more, block{cont.Offset, cont.Length})
		}
	}
	return more, nil
}

// add decodes one message. Continuations are returned rather than stored.
func (d *decoder) add(typ message.Type, body []byte, flags uint8) (*message.Continuation, error) {
	if typ == message.TypeNIL {
		return nil, nil
	}
	msg, err := message.Parse(typ, body, flags, d.r.Config())
	if err != nil {
		if typ != message.TypeAttribute {
			return nil, err
		}
		// Keep undecodable attributes verbatim so a rewrite preserves them.
		msg = &message.Unknown{MsgType: typ, Flags: flags, Data: append([]byte(nil), body...)}
	}
	if c, ok := msg.(*message.Continuation); ok {
		d.h.Continued = true
		return c, nil
	}
	d.h.Messages = append(d.h.Messages, msg)
	return nil, nil
}

func readV2(r *binpkg.Reader, address uint64) (*Header, error) {
	hr := r.At(int64(address) + 4)
	fixed, err := hr.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	if fixed[0] != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, fixed[0])
	}
	h := &Header{Version: 2, Address: address, Flags: fixed[1], RefCount: 1}
	if h.Flags&0x20 != 0 {
		hr.Skip(16) // access, modification, change and birth times
	}
	if h.Flags&0x10 != 0 {
		hr.Skip(4) // attribute phase change values
	}
	chunk0, err := hr.ReadUintN(1 << (h.Flags & 0x03))
	if err != nil {
		return nil, err
	}
	prefix := uint64(hr.Pos()) - address
	h.Size = prefix + chunk0 + 4

	raw, err := r.At(int64(address)).ReadBytes(int(h.Size))
	if err != nil {
		return nil, err
	}
	if err := verify(raw); err != nil {
		return nil, err
	}

	d := decoder{r: r, h: h, seen: map[uint64]bool{address: true}}
	pending, err := d.v2Messages(raw[prefix : prefix+chunk0])
	if err != nil {
		return nil, err
	}
	for len(pending) > 0 {
		b := pending[0]
		pending = pending[1:]
		if d.seen[b.offset] {
			return nil, fmt.Errorf("%w: continuation loop at %d", ErrInvalidHeader, b.offset)
		}
		d.seen[b.offset] = true

		blk, err := r.At(int64(b.offset)).ReadBytes(int(b.length))
		if err != nil {
			return nil, err
		}
		if len(blk) < 8 || !bytes.Equal(blk[:4], SignatureContinuation) {
			return nil, fmt.Errorf("%w: bad continuation block at %d", ErrInvalidHeader, b.offset)
		}
		if err := verify(blk); err != nil {
			return nil, err
		}
		more, err := d.v2Messages(blk[4 : len(blk)-4])
		if err != nil {
			return nil, err
		}
		pending = append(pending, more...)
	}
	return h, nil
}

func verify(raw []byte) error {
	n := len(raw) - 4
	if binpkg.Lookup3Checksum(raw[:n]) != binary.LittleEndian.Uint32(raw[n:]) {
		return ErrChecksum
	}
	return nil
}

func (d *decoder) v2Messages(data []byte) ([]block, error) {
	hdrSize := 4
	if d.h.Flags&0x04 != 0 {
		hdrSize = 6
	}
	var more []block
	// Fewer bytes than a message header left over is a gap, not a message.
	for pos := 0; pos+hdrSize <= len(data); {
		typ := message.Type(data[pos])
		size := int(binary.LittleEndian.Uint16(data[pos+1:]))
		flags := data[pos+3]
		pos += hdrSize
		if pos+size > len(data) {
			return nil, fmt.Errorf("%w: message 0x%02x overruns chunk", ErrInvalidHeader, uint16(typ))
		}
		cont, err := d.add(typ, data[pos:pos+size], flags)
		if err != nil {
			return nil, err
		}
		if cont != nil {
			more = append(more, block{cont.Offset, cont.Length})
		}
		pos += size
	}
	return more, nil
}
