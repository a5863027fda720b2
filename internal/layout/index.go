package layout

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/btree"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// ErrInvalidIndex is returned for a chunk index structure that fails to
// decode.
var ErrInvalidIndex = errors.New("invalid chunk index")

// LoadIndex reads every stored chunk of a chunked layout.
func LoadIndex(r *binary.Reader, l *message.DataLayout, g Geometry) ([]btree.ChunkEntry, error) {
	if l.Class != message.LayoutChunked {
		return nil, fmt.Errorf("%w: layout class %d is not chunked", ErrInvalidIndex, l.Class)
	}
	if len(l.ChunkDims) != len(g.Dims) {
		return nil, fmt.Errorf("%w: chunk rank %d, dataset rank %d", ErrInvalidIndex, len(l.ChunkDims), len(g.Dims))
	}
	for _, d := range l.ChunkDims {
		if d == 0 {
			return nil, fmt.Errorf("%w: zero chunk dimension", ErrInvalidIndex)
		}
	}
	if binary.IsUndefined(l.Address) {
		return nil, nil
	}
	grid := newGrid(l.ChunkDims, g)
	switch l.IndexType {
	case message.ChunkIndexBTreeV1:
		return btree.ReadChunkIndex(r, l.Address, len(g.Dims))
	case message.ChunkIndexSingle:
		e := btree.ChunkEntry{
			Offset:  make([]uint64, len(g.Dims)),
			Size:    uint32(grid.chunkBytes),
			Address: l.Address,
		}
		if l.ChunkFlags&0x02 != 0 {
			e.Size, e.FilterMask = uint32(l.SingleFilteredSize), l.SingleFilterMask
		}
		return []btree.ChunkEntry{e}, nil
	case message.ChunkIndexImplicit:
		var out []btree.ChunkEntry
		grid.each(func(idx uint64, origin []uint64) {
			out = append(out, btree.ChunkEntry{
				Offset:  origin,
				Size:    uint32(grid.chunkBytes),
				Address: l.Address + idx*grid.chunkBytes,
			})
		})
		return out, nil
	case message.ChunkIndexFixedArray:
		elems, err := readFixedArray(r, l.Address)
		if err != nil {
			return nil, err
		}
		return grid.entries(elems), nil
	case message.ChunkIndexExtensible:
		grid.swizzle()
		elems, err := readExtensibleArray(r, l.Address)
		if err != nil {
			return nil, err
		}
		return grid.entries(elems), nil
	case message.ChunkIndexBTreeV2:
		return btree.ReadChunkIndexV2(r, l.Address, btree.ChunkGeometry{
			ChunkDims: l.ChunkDims,
			ElemSize:  int(l.ChunkElementSize),
		})
	}
	return nil, fmt.Errorf("%w: chunk index type %d", message.ErrUnsupported, l.IndexType)
}

// grid maps between chunk coordinates and the linear chunk numbers the
// array indexes use. Numbers run row-major over the chunk counts of the
// maximum extent; an extensible array moves its unlimited dimension first.
type grid struct {
	chunk      []uint64
	dims       []uint64
	count      []uint64 // chunks per dimension of the maximum extent
	order      []int    // dimension stored at each linear position
	unlimited  int
	chunkBytes uint64
}

func newGrid(chunkDims []uint32, g Geometry) *grid {
	rank := len(chunkDims)
	gr := &grid{
		chunk:      make([]uint64, rank),
		dims:       g.Dims,
		count:      make([]uint64, rank),
		order:      make([]int, rank),
		unlimited:  -1,
		chunkBytes: uint64(g.ElemSize),
	}
	for d, c := range chunkDims {
		gr.chunk[d] = uint64(c)
		gr.chunkBytes *= uint64(c)
		m := g.Dims[d]
		if d < len(g.MaxDims) {
			if g.MaxDims[d] != binary.Undefined {
				m = max(g.MaxDims[d], g.Dims[d])
			} else if gr.unlimited < 0 {
				gr.unlimited = d
			}
		}
		gr.count[d] = (m + uint64(c) - 1) / uint64(c)
		gr.order[d] = d
	}
	return gr
}

// swizzle moves the first unlimited dimension to the front.
func (gr *grid) swizzle() {
	if gr.unlimited <= 0 {
		return
	}
	order := []int{gr.unlimited}
	for d := range gr.order {
		if d != gr.unlimited {
			order = append(order, d)
		}
	}
	gr.order = order
}

// origin converts a linear chunk number to the chunk's first element.
func (gr *grid) origin(idx uint64) []uint64 {
	rank := len(gr.order)
	out := make([]uint64, rank)
	for i := rank - 1; i >= 0; i-- {
		d := gr.order[i]
		n := gr.count[d]
		if i == 0 {
			out[d] = idx * gr.chunk[d]
			break
		}
		out[d] = (idx % n) * gr.chunk[d]
		idx /= n
	}
	return out
}

func (gr *grid) inExtent(origin []uint64) bool {
	for d, o := range origin {
		if o >= gr.dims[d] {
			return false
		}
	}
	return true
}

// each calls fn for every chunk position inside the current extent.
func (gr *grid) each(fn func(idx uint64, origin []uint64)) {
	total := uint64(1)
	for _, n := range gr.count {
		total *= n
	}
	for idx := uint64(0); idx < total; idx++ {
		if o := gr.origin(idx); gr.inExtent(o) {
			fn(idx, o)
		}
	}
}

func (gr *grid) entries(elems []arrayElement) []btree.ChunkEntry {
	var out []btree.ChunkEntry
	for _, e := range elems {
		if binary.IsUndefined(e.addr) || e.addr == 0 {
			continue
		}
		o := gr.origin(e.index)
		if !gr.inExtent(o) {
			continue
		}
		size := e.size
		if !e.filtered {
			size = gr.chunkBytes
		}
		out = append(out, btree.ChunkEntry{Offset: o, FilterMask: e.mask, Size: uint32(size), Address: e.addr})
	}
	return out
}
