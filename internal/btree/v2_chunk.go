package btree

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Version 2 B-tree record types for chunk indexes.
const (
	TypeChunk         uint8 = 10
	TypeFilteredChunk uint8 = 11
)

type v2Header struct {
	recordType   uint8
	nodeSize     uint32
	recordSize   uint16
	depth        uint16
	root         uint64
	rootRecords  uint16
	totalRecords uint64
}

// ChunkGeometry is what a v2 chunk record decoder needs to know about the
// dataset.
type ChunkGeometry struct {
	ChunkDims []uint32
	ElemSize  int
}

func (g ChunkGeometry) chunkBytes() uint64 {
	n := uint64(g.ElemSize)
	for _, d := range g.ChunkDims {
		n *= uint64(d)
	}
	return n
}

// encodedSize is the number of bytes used to store values up to n.
func encodedSize(n uint64) int {
	if n == 0 {
		return 1
	}
	return (bits.Len64(n)-1)/8 + 1
}

// ReadChunkIndexV2 reads the chunk records of the v2 B-tree at address.
func ReadChunkIndexV2(r *binary.Reader, address uint64, g ChunkGeometry) ([]ChunkEntry, error) {
	h, err := readV2Header(r, address)
	if err != nil {
		return nil, err
	}
	if h.recordType != TypeChunk && h.recordType != TypeFilteredChunk {
		return nil, fmt.Errorf("%w: v2 B-tree record type %d is not a chunk index", ErrInvalidNode, h.recordType)
	}
	if h.totalRecords == 0 || binary.IsUndefined(h.root) {
		return nil, nil
	}
	t := &v2Tree{r: r, h: h, g: g}
	t.layout()
	var out []ChunkEntry
	if err := t.readNode(h.root, int(h.rootRecords), int(h.depth), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readV2Header(r *binary.Reader, address uint64) (*v2Header, error) {
	nr := r.At(int64(address))
	size := 4 + 1 + 1 + 4 + 2 + 2 + 1 + 1 + nr.OffsetSize() + 2 + nr.LengthSize()
	raw, err := nr.ReadBytes(size + 4)
	if err != nil {
		return nil, fmt.Errorf("v2 B-tree header at %d: %w", address, err)
	}
	if string(raw[:4]) != "BTHD" || raw[4] != 0 {
		return nil, fmt.Errorf("%w: v2 B-tree header at %d", ErrInvalidNode, address)
	}
	if binary.Lookup3Checksum(raw[:size]) != r.ByteOrder().Uint32(raw[size:]) {
		return nil, fmt.Errorf("%w: v2 B-tree header checksum at %d", ErrInvalidNode, address)
	}
	br := binary.NewBytesReader(raw, r.Config()).At(5)
	h := &v2Header{}
	h.recordType, _ = br.ReadUint8()
	h.nodeSize, _ = br.ReadUint32()
	h.recordSize, _ = br.ReadUint16()
	h.depth, _ = br.ReadUint16()
	br.Skip(2) // split and merge percent
	h.root, _ = br.ReadOffset()
	h.rootRecords, _ = br.ReadUint16()
	h.totalRecords, _ = br.ReadLength()
	return h, nil
}

type v2Tree struct {
	r *binary.Reader
	h *v2Header
	g ChunkGeometry

	// Per depth: max records in a node, and the widths of the child
	// record count and total record count fields in a pointer to it.
	maxRecords []uint64
	maxTotal   []uint64
}

const v2NodeOverhead = 4 + 1 + 1 + 4

func (t *v2Tree) layout() {
	depth := int(t.h.depth)
	t.maxRecords = make([]uint64, depth+1)
	t.maxTotal = make([]uint64, depth+1)
	t.maxRecords[0] = uint64(int(t.h.nodeSize)-v2NodeOverhead) / uint64(t.h.recordSize)
	t.maxTotal[0] = t.maxRecords[0]
	for d := 1; d <= depth; d++ {
		ptr := uint64(t.pointerSize(d))
		t.maxRecords[d] = (uint64(t.h.nodeSize) - v2NodeOverhead - ptr) / (uint64(t.h.recordSize) + ptr)
		t.maxTotal[d] = (t.maxRecords[d]+1)*t.maxTotal[d-1] + t.maxRecords[d]
	}
}

// pointerSize is the size of a child pointer stored in a node at depth d.
func (t *v2Tree) pointerSize(d int) int {
	n := t.r.OffsetSize() + encodedSize(t.maxRecords[d-1])
	if d > 1 {
		n += encodedSize(t.maxTotal[d-1])
	}
	return n
}

// readNode appends the records under the node at address in key order.
// Internal nodes store all records first, then one more child pointer than
// records; record i falls between children i and i+1.
func (t *v2Tree) readNode(address uint64, nrec, depth int, out *[]ChunkEntry) error {
	nr := t.r.At(int64(address))
	sig, err := nr.ReadBytes(6)
	if err != nil {
		return fmt.Errorf("v2 B-tree node at %d: %w", address, err)
	}
	want := "BTLF"
	if depth > 0 {
		want = "BTIN"
	}
	if string(sig[:4]) != want || sig[4] != 0 {
		return fmt.Errorf("%w: expected %s at %d", ErrInvalidNode, want, address)
	}

	records := make([]ChunkEntry, nrec)
	for i := range records {
		rec, err := nr.ReadBytes(int(t.h.recordSize))
		if err != nil {
			return err
		}
		if records[i], err = t.decodeRecord(rec); err != nil {
			return err
		}
	}
	if depth == 0 {
		for _, e := range records {
			if !binary.IsUndefined(e.Address) {
				*out = append(*out, e)
			}
		}
		return nil
	}

	type pointer struct {
		address uint64
		records int
	}
	ptrs := make([]pointer, nrec+1)
	countWidth := encodedSize(t.maxRecords[depth-1])
	for i := range ptrs {
		if ptrs[i].address, err = nr.ReadOffset(); err != nil {
			return err
		}
		n, err := nr.ReadUintN(countWidth)
		if err != nil {
			return err
		}
		ptrs[i].records = int(n)
		if depth > 1 {
			nr.Skip(int64(encodedSize(t.maxTotal[depth-1])))
		}
	}
	for i, p := range ptrs {
		if err := t.readNode(p.address, p.records, depth-1, out); err != nil {
			return err
		}
		if i < nrec && !binary.IsUndefined(records[i].Address) {
			*out = append(*out, records[i])
		}
	}
	return nil
}

func (t *v2Tree) decodeRecord(rec []byte) (ChunkEntry, error) {
	rank := len(t.g.ChunkDims)
	br := binary.NewBytesReader(rec, t.r.Config())
	e := ChunkEntry{Offset: make([]uint64, rank)}
	var err error
	if e.Address, err = br.ReadOffset(); err != nil {
		return e, err
	}
	if t.h.recordType == TypeFilteredChunk {
		size, err := br.ReadUintN(filteredSizeWidth(t.g.chunkBytes()))
		if err != nil {
			return e, err
		}
		e.Size = uint32(size)
		if e.FilterMask, err = br.ReadUint32(); err != nil {
			return e, err
		}
	} else {
		e.Size = uint32(t.g.chunkBytes())
	}
	for d := 0; d < rank; d++ {
		scaled, err := br.ReadUint64()
		if err != nil {
			return e, err
		}
		e.Offset[d] = scaled * uint64(t.g.ChunkDims[d])
	}
	return e, nil
}

// filteredSizeWidth is the width of the stored size field in a filtered
// chunk record: one byte more than the unfiltered chunk size needs, at
// most eight.
func filteredSizeWidth(chunkBytes uint64) int {
	n := 1 + (bits.Len64(chunkBytes)-1+8)/8
	if chunkBytes == 0 {
		n = 1
	}
	return min(n, 8)
}
