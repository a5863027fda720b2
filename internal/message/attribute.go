package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Attribute is the attribute message (0x000C): a small named value stored
// directly in an object header.
type Attribute struct {
	Version   uint8
	Name      string
	CharSet   CharacterSet
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

// NewAttribute returns a version 3 attribute message.
func NewAttribute(name string, dt *Datatype, ds *Dataspace, data []byte) *Attribute {
	return &Attribute{
		Version:   3,
		Name:      name,
		CharSet:   CharsetUTF8,
		Datatype:  dt,
		Dataspace: ds,
		Data:      data,
	}
}

func parseAttribute(r *binary.Reader, total int) (*Attribute, error) {
	hdr, err := r.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	attr := &Attribute{Version: hdr[0]}
	flags := hdr[1]
	nameSize := int(hdr[2]) | int(hdr[3])<<8
	dtSize := int(hdr[4]) | int(hdr[5])<<8
	dsSize := int(hdr[6]) | int(hdr[7])<<8

	padded := false
	switch attr.Version {
	case 1:
		padded = true
	case 2:
	case 3:
		cset, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		attr.CharSet = CharacterSet(cset)
	default:
		return nil, fmt.Errorf("%w: attribute version %d", ErrUnsupported, attr.Version)
	}
	if flags&0x03 != 0 {
		return nil, fmt.Errorf("%w: shared attribute datatype or dataspace", ErrUnsupported)
	}
	align := func(n int) int {
		if padded {
			return pad8(n)
		}
		return n
	}

	name, err := r.ReadBytes(align(nameSize))
	if err != nil {
		return nil, err
	}
	attr.Name = cstring(name[:nameSize])

	start := r.Pos()
	if attr.Datatype, err = parseDatatype(r); err != nil {
		return nil, fmt.Errorf("attribute %q: %w", attr.Name, err)
	}
	r = r.At(start + int64(align(dtSize)))

	start = r.Pos()
	if attr.Dataspace, err = parseDataspace(r); err != nil {
		return nil, fmt.Errorf("attribute %q: %w", attr.Name, err)
	}
	r = r.At(start + int64(align(dsSize)))

	n := int(attr.Dataspace.NumElements()) * int(attr.Datatype.Size)
	if int(r.Pos())+n > total {
		return nil, fmt.Errorf("attribute %q: %w", attr.Name, ErrTruncated)
	}
	if attr.Data, err = r.ReadBytes(n); err != nil {
		return nil, err
	}
	return attr, nil
}

// Serialize writes a version 3 attribute message.
func (m *Attribute) Serialize(w *binary.Writer) error {
	cfg := w.Config()
	dt, err := Encode(m.Datatype, cfg)
	if err != nil {
		return err
	}
	ds, err := Encode(m.Dataspace, cfg)
	if err != nil {
		return err
	}
	w.WriteUint8(3)
	w.WriteUint8(0)
	w.WriteUint16(uint16(len(m.Name) + 1))
	w.WriteUint16(uint16(len(dt)))
	w.WriteUint16(uint16(len(ds)))
	w.WriteUint8(uint8(m.CharSet))
	w.WriteBytes(append([]byte(m.Name), 0))
	w.WriteBytes(dt)
	w.WriteBytes(ds)
	return w.WriteBytes(m.Data)
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
