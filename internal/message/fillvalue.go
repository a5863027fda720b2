package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Space allocation times.
const (
	AllocEarly       uint8 = 1
	AllocLate        uint8 = 2
	AllocIncremental uint8 = 3
)

// Fill value write times.
const (
	FillOnAlloc uint8 = 0
	FillNever   uint8 = 1
	FillIfSet   uint8 = 2
)

// FillValue is the fill value message (0x0005, or the older 0x0004).
type FillValue struct {
	Version   uint8
	AllocTime uint8
	WriteTime uint8
	Defined   bool
	Value     []byte // nil means the library default (zeros)
}

func (m *FillValue) Type() Type { return TypeFillValue }

// NewFillValue returns the fill value message written for chunked datasets:
// incremental allocation, fill written only when set.
func NewFillValue(value []byte) *FillValue {
	return &FillValue{
		Version:   3,
		AllocTime: AllocIncremental,
		WriteTime: FillIfSet,
		Defined:   value != nil,
		Value:     value,
	}
}

func parseFillValueOld(data []byte) (*FillValue, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	n := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
	if 4+n > len(data) {
		return nil, ErrTruncated
	}
	fv := &FillValue{Version: 0, AllocTime: AllocLate, WriteTime: FillIfSet, Defined: n > 0}
	if n > 0 {
		fv.Value = append([]byte(nil), data[4:4+n]...)
	}
	return fv, nil
}

func parseFillValue(r *binary.Reader) (*FillValue, error) {
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	fv := &FillValue{Version: version}
	switch version {
	case 1, 2:
		hdr, err := r.ReadBytes(3)
		if err != nil {
			return nil, err
		}
		fv.AllocTime, fv.WriteTime, fv.Defined = hdr[0], hdr[1], hdr[2] != 0
		if version == 2 && !fv.Defined {
			return fv, nil
		}
	case 3:
		flags, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		fv.AllocTime = flags & 0x03
		fv.WriteTime = flags >> 2 & 0x03
		fv.Defined = flags&0x20 != 0
		if !fv.Defined {
			return fv, nil
		}
	default:
		return nil, fmt.Errorf("%w: fill value version %d", ErrUnsupported, version)
	}

	size, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if size > 0 {
		if fv.Value, err = r.ReadBytes(int(size)); err != nil {
			return nil, err
		}
	}
	return fv, nil
}

// Serialize writes a version 3 fill value message.
func (m *FillValue) Serialize(w *binary.Writer) error {
	flags := m.AllocTime&0x03 | (m.WriteTime&0x03)<<2
	if m.Defined {
		flags |= 0x20
	}
	w.WriteUint8(3)
	if err := w.WriteUint8(flags); err != nil {
		return err
	}
	if m.Defined {
		w.WriteUint32(uint32(len(m.Value)))
		return w.WriteBytes(m.Value)
	}
	return nil
}
