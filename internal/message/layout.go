package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// LayoutClass is the storage layout of a dataset.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	case LayoutVirtual:
		return "virtual"
	}
	return fmt.Sprintf("layout%d", uint8(c))
}

// ChunkIndexType identifies how chunk addresses are looked up. Layout
// messages before version 4 always use a version 1 B-tree.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1    ChunkIndexType = 0
	ChunkIndexSingle     ChunkIndexType = 1
	ChunkIndexImplicit   ChunkIndexType = 2
	ChunkIndexFixedArray ChunkIndexType = 3
	ChunkIndexExtensible ChunkIndexType = 4
	ChunkIndexBTreeV2    ChunkIndexType = 5
)

// DataLayout is the data layout message (0x0008).
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	CompactData []byte

	// Contiguous data address, or the chunk index address.
	Address uint64
	Size    uint64

	ChunkDims        []uint32 // per dataset dimension
	ChunkElementSize uint32
	IndexType        ChunkIndexType
	ChunkFlags       uint8

	// Version 4 index parameters.
	SingleFilteredSize uint64
	SingleFilterMask   uint32
	PageBits           uint8
	EAMaxBits          uint8
	EAIndexElements    uint8
	EAMinPointers      uint8
	EAMinElements      uint8
	BT2NodeSize        uint32
	BT2SplitPercent    uint8
	BT2MergePercent    uint8
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

// NewChunkedLayout returns a version 3 chunked layout indexed by a v1
// B-tree rooted at addr.
func NewChunkedLayout(addr uint64, chunk []uint32, elemSize uint32) *DataLayout {
	return &DataLayout{
		Version:          3,
		Class:            LayoutChunked,
		Address:          addr,
		ChunkDims:        append([]uint32(nil), chunk...),
		ChunkElementSize: elemSize,
		IndexType:        ChunkIndexBTreeV1,
	}
}

// NewContiguousLayout returns a version 3 contiguous layout.
func NewContiguousLayout(addr, size uint64) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutContiguous, Address: addr, Size: size}
}

// NewCompactLayout returns a version 3 compact layout.
func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutCompact, CompactData: data}
}

func parseDataLayout(r *binary.Reader) (*DataLayout, error) {
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch version {
	case 1, 2:
		return parseLayoutV1(r, version)
	case 3, 4:
		return parseLayoutV3(r, version)
	}
	return nil, fmt.Errorf("%w: layout version %d", ErrUnsupported, version)
}

func parseLayoutV1(r *binary.Reader, version uint8) (*DataLayout, error) {
	hdr, err := r.ReadBytes(7)
	if err != nil {
		return nil, err
	}
	rank := int(hdr[0])
	l := &DataLayout{Version: version, Class: LayoutClass(hdr[1])}
	if l.Class != LayoutCompact {
		if l.Address, err = r.ReadOffset(); err != nil {
			return nil, err
		}
	}
	dims := make([]uint32, rank)
	for i := range dims {
		if dims[i], err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	switch l.Class {
	case LayoutCompact:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		if l.CompactData, err = r.ReadBytes(int(n)); err != nil {
			return nil, err
		}
	case LayoutContiguous:
		l.Size = 1
		for _, d := range dims {
			l.Size *= uint64(d)
		}
	case LayoutChunked:
		if rank < 1 {
			return nil, fmt.Errorf("%w: chunked layout without dimensions", ErrTruncated)
		}
		l.ChunkDims = dims[:rank-1]
		l.ChunkElementSize = dims[rank-1]
	}
	return l, nil
}

func parseLayoutV3(r *binary.Reader, version uint8) (*DataLayout, error) {
	class, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	l := &DataLayout{Version: version, Class: LayoutClass(class)}
	switch l.Class {
	case LayoutCompact:
		n, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		l.CompactData, err = r.ReadBytes(int(n))
		return l, err
	case LayoutContiguous:
		if l.Address, err = r.ReadOffset(); err != nil {
			return nil, err
		}
		l.Size, err = r.ReadLength()
		return l, err
	case LayoutChunked:
		if version == 3 {
			return parseChunkedV3(r, l)
		}
		return parseChunkedV4(r, l)
	case LayoutVirtual:
		return nil, fmt.Errorf("%w: virtual dataset layout", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: layout class %d", ErrUnsupported, class)
}

func parseChunkedV3(r *binary.Reader, l *DataLayout) (*DataLayout, error) {
	rank, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if rank < 1 {
		return nil, fmt.Errorf("%w: chunked layout without dimensions", ErrTruncated)
	}
	if l.Address, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	dims := make([]uint32, rank)
	for i := range dims {
		if dims[i], err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	l.IndexType = ChunkIndexBTreeV1
	l.ChunkDims = dims[:rank-1]
	l.ChunkElementSize = dims[rank-1]
	return l, nil
}

func parseChunkedV4(r *binary.Reader, l *DataLayout) (*DataLayout, error) {
	hdr, err := r.ReadBytes(3)
	if err != nil {
		return nil, err
	}
	l.ChunkFlags = hdr[0]
	rank, width := int(hdr[1]), int(hdr[2])
	if rank < 1 {
		return nil, fmt.Errorf("%w: chunked layout without dimensions", ErrTruncated)
	}
	dims := make([]uint32, rank)
	for i := range dims {
		v, err := r.ReadUintN(width)
		if err != nil {
			return nil, err
		}
		dims[i] = uint32(v)
	}
	l.ChunkDims = dims[:rank-1]
	l.ChunkElementSize = dims[rank-1]

	idx, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	l.IndexType = ChunkIndexType(idx)
	switch l.IndexType {
	case ChunkIndexSingle:
		if l.ChunkFlags&0x02 != 0 {
			if l.SingleFilteredSize, err = r.ReadLength(); err != nil {
				return nil, err
			}
			if l.SingleFilterMask, err = r.ReadUint32(); err != nil {
				return nil, err
			}
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		if l.PageBits, err = r.ReadUint8(); err != nil {
			return nil, err
		}
	case ChunkIndexExtensible:
		p, err := r.ReadBytes(5)
		if err != nil {
			return nil, err
		}
		l.EAMaxBits, l.EAIndexElements, l.EAMinPointers, l.EAMinElements, l.PageBits = p[0], p[1], p[2], p[3], p[4]
	case ChunkIndexBTreeV2:
		if l.BT2NodeSize, err = r.ReadUint32(); err != nil {
			return nil, err
		}
		p, err := r.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		l.BT2SplitPercent, l.BT2MergePercent = p[0], p[1]
	default:
		return nil, fmt.Errorf("%w: chunk index type %d", ErrUnsupported, idx)
	}
	l.Address, err = r.ReadOffset()
	return l, err
}

// Serialize writes a version 3 layout message. Chunked layouts are always
// indexed by a version 1 B-tree.
func (m *DataLayout) Serialize(w *binary.Writer) error {
	w.WriteUint8(3)
	if err := w.WriteUint8(uint8(m.Class)); err != nil {
		return err
	}
	switch m.Class {
	case LayoutCompact:
		w.WriteUint16(uint16(len(m.CompactData)))
		return w.WriteBytes(m.CompactData)
	case LayoutContiguous:
		w.WriteOffset(m.Address)
		return w.WriteLength(m.Size)
	case LayoutChunked:
		if m.IndexType != ChunkIndexBTreeV1 {
			return fmt.Errorf("%w: writing chunk index type %d", ErrUnsupported, m.IndexType)
		}
		w.WriteUint8(uint8(len(m.ChunkDims) + 1))
		w.WriteOffset(m.Address)
		for _, d := range m.ChunkDims {
			w.WriteUint32(d)
		}
		return w.WriteUint32(m.ChunkElementSize)
	}
	return fmt.Errorf("%w: layout class %d", ErrUnsupported, m.Class)
}
