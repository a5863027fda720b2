package message

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// LinkType is the kind of link stored in a link message.
type LinkType uint8

const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// Link is the link message (0x0006) used by new-style compact groups.
type Link struct {
	LinkType      LinkType
	HasOrder      bool
	CreationOrder uint64
	CharSet       CharacterSet
	Name          string

	ObjectAddress uint64 // hard links
	SoftPath      string // soft links
	ExternalFile  string
	ExternalPath  string
}

func (m *Link) Type() Type { return TypeLink }

func (m *Link) IsHard() bool { return m.LinkType == LinkHard }

// NewHardLink returns a hard link that records its creation order.
func NewHardLink(name string, addr, order uint64) *Link {
	return &Link{
		LinkType:      LinkHard,
		HasOrder:      true,
		CreationOrder: order,
		CharSet:       CharsetUTF8,
		Name:          name,
		ObjectAddress: addr,
	}
}

func parseLink(r *binary.Reader) (*Link, error) {
	hdr, err := r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	if hdr[0] != 1 {
		return nil, fmt.Errorf("%w: link version %d", ErrUnsupported, hdr[0])
	}
	flags := hdr[1]
	l := &Link{}
	if flags&0x08 != 0 {
		t, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		l.LinkType = LinkType(t)
	}
	if flags&0x04 != 0 {
		l.HasOrder = true
		if l.CreationOrder, err = r.ReadUint64(); err != nil {
			return nil, err
		}
	}
	if flags&0x10 != 0 {
		c, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		l.CharSet = CharacterSet(c)
	}
	nameLen, err := r.ReadUintN(1 << (flags & 0x03))
	if err != nil {
		return nil, err
	}
	name, err := r.ReadBytes(int(nameLen))
	if err != nil {
		return nil, err
	}
	l.Name = string(name)

	switch l.LinkType {
	case LinkHard:
		l.ObjectAddress, err = r.ReadOffset()
		return l, err
	case LinkSoft, LinkExternal:
		n, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		val, err := r.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		if l.LinkType == LinkSoft {
			l.SoftPath = string(val)
			return l, nil
		}
		// External: version/flags byte, then two NUL-terminated strings.
		parts := bytes.SplitN(val[min(1, len(val)):], []byte{0}, 3)
		if len(parts) >= 2 {
			l.ExternalFile = string(parts[0])
			l.ExternalPath = string(parts[1])
		}
		return l, nil
	}
	return nil, fmt.Errorf("%w: link type %d", ErrUnsupported, l.LinkType)
}

// Serialize writes a version 1 link message.
func (m *Link) Serialize(w *binary.Writer) error {
	var flags uint8
	width := minBytes(uint64(len(m.Name)))
	switch width {
	case 1:
	case 2:
		flags |= 0x01
	case 3, 4:
		flags |= 0x02
		width = 4
	default:
		flags |= 0x03
		width = 8
	}
	if m.HasOrder {
		flags |= 0x04
	}
	if m.LinkType != LinkHard {
		flags |= 0x08
	}
	if m.CharSet != CharsetASCII {
		flags |= 0x10
	}

	w.WriteUint8(1)
	w.WriteUint8(flags)
	if m.LinkType != LinkHard {
		w.WriteUint8(uint8(m.LinkType))
	}
	if m.HasOrder {
		w.WriteUint64(m.CreationOrder)
	}
	if m.CharSet != CharsetASCII {
		w.WriteUint8(uint8(m.CharSet))
	}
	w.WriteUintN(uint64(len(m.Name)), width)
	w.WriteBytes([]byte(m.Name))

	switch m.LinkType {
	case LinkHard:
		return w.WriteOffset(m.ObjectAddress)
	case LinkSoft:
		w.WriteUint16(uint16(len(m.SoftPath)))
		return w.WriteBytes([]byte(m.SoftPath))
	case LinkExternal:
		val := append([]byte{0}, m.ExternalFile...)
		val = append(val, 0)
		val = append(val, m.ExternalPath...)
		val = append(val, 0)
		w.WriteUint16(uint16(len(val)))
		return w.WriteBytes(val)
	}
	return fmt.Errorf("%w: link type %d", ErrUnsupported, m.LinkType)
}

// LinkInfo is the link info message (0x0002) that marks a new-style group.
type LinkInfo struct {
	Flags              uint8
	MaxCreationIndex   uint64
	FractalHeapAddress uint64
	NameIndexAddress   uint64
	OrderIndexAddress  uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

// Tracked reports whether link creation order is recorded.
func (m *LinkInfo) Tracked() bool { return m.Flags&0x01 != 0 }

// Dense reports whether links are held in a fractal heap.
func (m *LinkInfo) Dense() bool { return !binary.IsUndefined(m.FractalHeapAddress) }

// NewLinkInfo returns link info for a compact group tracking creation order.
func NewLinkInfo() *LinkInfo {
	return &LinkInfo{
		Flags:              0x01,
		FractalHeapAddress: binary.Undefined,
		NameIndexAddress:   binary.Undefined,
		OrderIndexAddress:  binary.Undefined,
	}
}

func parseLinkInfo(r *binary.Reader) (*LinkInfo, error) {
	hdr, err := r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	m := &LinkInfo{Flags: hdr[1], OrderIndexAddress: binary.Undefined}
	if m.Flags&0x01 != 0 {
		if m.MaxCreationIndex, err = r.ReadUint64(); err != nil {
			return nil, err
		}
	}
	if m.FractalHeapAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if m.NameIndexAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if m.Flags&0x02 != 0 {
		if m.OrderIndexAddress, err = r.ReadOffset(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *LinkInfo) Serialize(w *binary.Writer) error {
	w.WriteUint8(0)
	w.WriteUint8(m.Flags)
	if m.Flags&0x01 != 0 {
		w.WriteUint64(m.MaxCreationIndex)
	}
	w.WriteOffset(m.FractalHeapAddress)
	if err := w.WriteOffset(m.NameIndexAddress); err != nil {
		return err
	}
	if m.Flags&0x02 != 0 {
		return w.WriteOffset(m.OrderIndexAddress)
	}
	return nil
}

// GroupInfo is the group info message (0x000A). Only the default phase
// change values are written.
type GroupInfo struct {
	Flags            uint8
	MaxCompact       uint16
	MinDense         uint16
	EstimatedEntries uint16
	EstimatedNameLen uint16
}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func parseGroupInfo(r *binary.Reader) (*GroupInfo, error) {
	hdr, err := r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	m := &GroupInfo{Flags: hdr[1]}
	if m.Flags&0x01 != 0 {
		if m.MaxCompact, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if m.MinDense, err = r.ReadUint16(); err != nil {
			return nil, err
		}
	}
	if m.Flags&0x02 != 0 {
		if m.EstimatedEntries, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if m.EstimatedNameLen, err = r.ReadUint16(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *GroupInfo) Serialize(w *binary.Writer) error {
	w.WriteUint8(0)
	if err := w.WriteUint8(m.Flags); err != nil {
		return err
	}
	if m.Flags&0x01 != 0 {
		w.WriteUint16(m.MaxCompact)
		w.WriteUint16(m.MinDense)
	}
	if m.Flags&0x02 != 0 {
		w.WriteUint16(m.EstimatedEntries)
		return w.WriteUint16(m.EstimatedNameLen)
	}
	return nil
}
