package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Registered filter identifiers.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
	FilterSnappy      uint16 = 32003
)

// FilterOptional marks a filter whose failure does not fail the write.
const FilterOptional uint16 = 0x0001

// FilterInfo is one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

func (f FilterInfo) Optional() bool { return f.Flags&FilterOptional != 0 }

// FilterPipeline is the filter pipeline message (0x000B). Filters are
// listed in the order they are applied on write.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// Has reports whether the pipeline contains filter id.
func (m *FilterPipeline) Has(id uint16) bool {
	for _, f := range m.Filters {
		if f.ID == id {
			return true
		}
	}
	return false
}

func parseFilterPipeline(r *binary.Reader) (*FilterPipeline, error) {
	hdr, err := r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	fp := &FilterPipeline{Version: hdr[0], Filters: make([]FilterInfo, hdr[1])}
	switch fp.Version {
	case 1:
		r.Skip(6)
	case 2:
	default:
		return nil, fmt.Errorf("%w: filter pipeline version %d", ErrUnsupported, fp.Version)
	}

	for i := range fp.Filters {
		f := &fp.Filters[i]
		if f.ID, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		var nameLen uint16
		if fp.Version == 1 || f.ID >= 256 {
			if nameLen, err = r.ReadUint16(); err != nil {
				return nil, err
			}
		}
		if f.Flags, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		ncd, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		if nameLen > 0 {
			n := int(nameLen)
			if fp.Version == 1 {
				n = pad8(n)
			}
			name, err := r.ReadBytes(n)
			if err != nil {
				return nil, err
			}
			f.Name = cstring(name)
		}
		f.ClientData = make([]uint32, ncd)
		for j := range f.ClientData {
			if f.ClientData[j], err = r.ReadUint32(); err != nil {
				return nil, err
			}
		}
		if fp.Version == 1 && ncd%2 == 1 {
			r.Skip(4)
		}
	}
	return fp, nil
}

// Serialize writes a version 2 filter pipeline. Names are only stored for
// filters outside the reserved range.
func (m *FilterPipeline) Serialize(w *binary.Writer) error {
	w.WriteUint8(2)
	if err := w.WriteUint8(uint8(len(m.Filters))); err != nil {
		return err
	}
	for _, f := range m.Filters {
		w.WriteUint16(f.ID)
		var name []byte
		if f.ID >= 256 {
			if f.Name != "" {
				name = append([]byte(f.Name), 0)
			}
			w.WriteUint16(uint16(len(name)))
		}
		w.WriteUint16(f.Flags)
		w.WriteUint16(uint16(len(f.ClientData)))
		w.WriteBytes(name)
		for _, cd := range f.ClientData {
			if err := w.WriteUint32(cd); err != nil {
				return err
			}
		}
	}
	return nil
}
