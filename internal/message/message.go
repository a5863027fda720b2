// Package message parses and serializes HDF5 object header messages.
//
// Object headers hold a sequence of messages describing a group or dataset:
// its dataspace, datatype, storage layout, filters, attributes and links.
// Parse decodes a raw message body into one of the concrete types below;
// types this package does not interpret come back as *Unknown and are
// written back verbatim when a header is rewritten.
package message

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Type is an HDF5 header message type.
type Type uint16

const (
	TypeNIL                      Type = 0x0000
	TypeDataspace                Type = 0x0001
	TypeLinkInfo                 Type = 0x0002
	TypeDatatype                 Type = 0x0003
	TypeFillValueOld             Type = 0x0004
	TypeFillValue                Type = 0x0005
	TypeLink                     Type = 0x0006
	TypeExternalDataFiles        Type = 0x0007
	TypeDataLayout               Type = 0x0008
	TypeBogus                    Type = 0x0009
	TypeGroupInfo                Type = 0x000A
	TypeFilterPipeline           Type = 0x000B
	TypeAttribute                Type = 0x000C
	TypeObjectComment            Type = 0x000D
	TypeObjectModTimeOld         Type = 0x000E
	TypeSharedMessageTable       Type = 0x000F
	TypeObjectHeaderContinuation Type = 0x0010
	TypeSymbolTable              Type = 0x0011
	TypeObjectModTime            Type = 0x0012
	TypeBTreeKValues             Type = 0x0013
	TypeDriverInfo               Type = 0x0014
	TypeAttributeInfo            Type = 0x0015
	TypeObjectRefCount           Type = 0x0016
)

// Message flag bits stored in the object header next to each message.
const (
	FlagConstant    uint8 = 0x01
	FlagShared      uint8 = 0x02
	FlagDontShare   uint8 = 0x04
	FlagFailUnknown uint8 = 0x08
)

var (
	ErrTruncated   = errors.New("message truncated")
	ErrUnsupported = errors.New("unsupported message encoding")
)

// Message is implemented by every header message.
type Message interface {
	Type() Type
}

// Serializable messages can be written into an object header.
type Serializable interface {
	Message
	Serialize(w *binary.Writer) error
}

// Parse decodes a message body. cfg supplies the file's address and length
// widths. Messages flagged as shared decode to *Shared.
func Parse(typ Type, data []byte, flags uint8, cfg binary.Config) (Message, error) {
	r := binary.NewBytesReader(data, cfg)
	if flags&FlagShared != 0 {
		return parseShared(typ, r)
	}

	var (
		msg Message
		err error
	)
	switch typ {
	case TypeDataspace:
		msg, err = parseDataspace(r)
	case TypeLinkInfo:
		msg, err = parseLinkInfo(r)
	case TypeDatatype:
		msg, err = parseDatatypeMessage(r)
	case TypeFillValueOld:
		msg, err = parseFillValueOld(data)
	case TypeFillValue:
		msg, err = parseFillValue(r)
	case TypeLink:
		msg, err = parseLink(r)
	case TypeDataLayout:
		msg, err = parseDataLayout(r)
	case TypeGroupInfo:
		msg, err = parseGroupInfo(r)
	case TypeFilterPipeline:
		msg, err = parseFilterPipeline(r)
	case TypeAttribute:
		msg, err = parseAttribute(r, len(data))
	case TypeObjectHeaderContinuation:
		msg, err = parseContinuation(r)
	case TypeSymbolTable:
		msg, err = parseSymbolTable(r)
	case TypeAttributeInfo:
		msg, err = parseAttributeInfo(r)
	default:
		return &Unknown{MsgType: typ, Flags: flags, Data: append([]byte(nil), data...)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("message 0x%04x: %w", uint16(typ), err)
	}
	return msg, nil
}

// Encode serializes msg into a standalone byte slice.
func Encode(msg Serializable, cfg binary.Config) ([]byte, error) {
	w, buf := binary.NewBufferWriter(cfg)
	if err := msg.Serialize(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unknown carries the raw body of a message this package does not decode.
type Unknown struct {
	MsgType Type
	Flags   uint8
	Data    []byte
}

func (m *Unknown) Type() Type { return m.MsgType }

func (m *Unknown) Serialize(w *binary.Writer) error { return w.WriteBytes(m.Data) }

// Continuation points at another block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

func (m *Continuation) Serialize(w *binary.Writer) error {
	w.WriteOffset(m.Offset)
	return w.WriteLength(m.Length)
}

func parseContinuation(r *binary.Reader) (*Continuation, error) {
	off, err := r.ReadOffset()
	if err != nil {
		return nil, err
	}
	length, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	return &Continuation{Offset: off, Length: length}, nil
}

// SymbolTable points at the v1 B-tree and local heap of an old-style group.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func parseSymbolTable(r *binary.Reader) (*SymbolTable, error) {
	bt, err := r.ReadOffset()
	if err != nil {
		return nil, err
	}
	heap, err := r.ReadOffset()
	if err != nil {
		return nil, err
	}
	return &SymbolTable{BTreeAddress: bt, LocalHeapAddress: heap}, nil
}

// AttributeInfo is present on objects that track attribute creation order
// or keep attributes in dense storage.
type AttributeInfo struct {
	Flags              uint8
	MaxCreationIndex   uint16
	FractalHeapAddress uint64
	NameIndexAddress   uint64
	CreationOrderIndex uint64
}

func (m *AttributeInfo) Type() Type { return TypeAttributeInfo }

// Dense reports whether attributes live in a fractal heap.
func (m *AttributeInfo) Dense() bool { return !binary.IsUndefined(m.FractalHeapAddress) }

func parseAttributeInfo(r *binary.Reader) (*AttributeInfo, error) {
	if _, err := r.ReadUint8(); err != nil {
		return nil, err
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	m := &AttributeInfo{Flags: flags, CreationOrderIndex: binary.Undefined}
	if flags&0x01 != 0 {
		if m.MaxCreationIndex, err = r.ReadUint16(); err != nil {
			return nil, err
		}
	}
	if m.FractalHeapAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if m.NameIndexAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if flags&0x02 != 0 {
		if m.CreationOrderIndex, err = r.ReadOffset(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Shared replaces a message whose body is stored elsewhere, typically a
// committed datatype living in its own object header.
type Shared struct {
	MsgType Type
	Version uint8
	// Kind 0/2 point at an object header; kind 1 is a shared message heap ID.
	Kind    uint8
	Address uint64
}

func (m *Shared) Type() Type { return m.MsgType }

func parseShared(typ Type, r *binary.Reader) (*Shared, error) {
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	kind, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	m := &Shared{MsgType: typ, Version: version, Kind: kind}
	switch version {
	case 1:
		r.Skip(6)
	case 2, 3:
	default:
		return nil, fmt.Errorf("%w: shared message version %d", ErrUnsupported, version)
	}
	if version == 3 && kind == 1 {
		m.Address, err = r.ReadUint64()
	} else {
		m.Address, err = r.ReadOffset()
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// minBytes returns the number of bytes needed to store v, at least 1.
func minBytes(v uint64) int {
	n := 1
	for v > 0xff {
		v >>= 8
		n++
	}
	return n
}

func pad8(n int) int {
	return (n + 7) &^ 7
}
