package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// DataspaceType is the kind of dataspace.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Unlimited marks an extensible dimension in MaxDims.
const Unlimited = binary.Undefined

// Dataspace is the dataspace message (0x0001).
type Dataspace struct {
	Version    uint8
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64 // nil when equal to Dimensions
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NewScalarDataspace returns a rank-0 dataspace holding one element.
func NewScalarDataspace() *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceScalar}
}

// NewSimpleDataspace returns an N-dimensional dataspace. maxDims may be nil.
func NewSimpleDataspace(dims, maxDims []uint64) *Dataspace {
	ds := &Dataspace{
		Version:    2,
		SpaceType:  DataspaceSimple,
		Dimensions: append([]uint64(nil), dims...),
	}
	if maxDims != nil {
		ds.MaxDims = append([]uint64(nil), maxDims...)
	}
	return ds
}

func (m *Dataspace) Rank() int { return len(m.Dimensions) }

// NumElements returns the number of elements selected by the extent.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		n := uint64(1)
		for _, d := range m.Dimensions {
			n *= d
		}
		return n
	}
	return 0
}

// Max returns the maximum extent, filling in the current extent when the
// message carried none.
func (m *Dataspace) Max() []uint64 {
	if m.MaxDims != nil {
		return m.MaxDims
	}
	return m.Dimensions
}

func parseDataspace(r *binary.Reader) (*Dataspace, error) {
	hdr, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	ds := &Dataspace{Version: hdr[0]}
	rank := int(hdr[1])
	flags := hdr[2]

	switch ds.Version {
	case 1:
		r.Skip(4)
		ds.SpaceType = DataspaceSimple
		if rank == 0 {
			ds.SpaceType = DataspaceScalar
		}
	case 2:
		ds.SpaceType = DataspaceType(hdr[3])
	default:
		return nil, fmt.Errorf("%w: dataspace version %d", ErrUnsupported, ds.Version)
	}
	if ds.SpaceType != DataspaceSimple {
		return ds, nil
	}

	ds.Dimensions = make([]uint64, rank)
	for i := range ds.Dimensions {
		if ds.Dimensions[i], err = r.ReadLength(); err != nil {
			return nil, err
		}
	}
	if flags&0x01 != 0 {
		ds.MaxDims = make([]uint64, rank)
		for i := range ds.MaxDims {
			v, err := r.ReadLength()
			if err != nil {
				return nil, err
			}
			if r.LengthSize() < 8 && v == uint64(1)<<(8*r.LengthSize())-1 {
				v = Unlimited
			}
			ds.MaxDims[i] = v
		}
	}
	return ds, nil
}

// Serialize writes a version 2 dataspace message.
func (m *Dataspace) Serialize(w *binary.Writer) error {
	var flags uint8
	if m.MaxDims != nil {
		flags |= 0x01
	}
	w.WriteUint8(2)
	w.WriteUint8(uint8(len(m.Dimensions)))
	w.WriteUint8(flags)
	if err := w.WriteUint8(uint8(m.SpaceType)); err != nil {
		return err
	}
	for _, d := range m.Dimensions {
		if err := w.WriteLength(d); err != nil {
			return err
		}
	}
	for _, d := range m.MaxDims {
		if err := w.WriteLength(d); err != nil {
			return err
		}
	}
	return nil
}
