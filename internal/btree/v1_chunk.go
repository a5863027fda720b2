package btree

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/binary"
)

// DefaultK is the chunk B-tree rank written when the superblock does not
// say otherwise. Nodes hold up to 2K children.
const DefaultK = 32

const (
	nodeTypeGroup = 0
	nodeTypeChunk = 1
)

var signatureV1 = []byte("TREE")

// ErrInvalidNode is returned for a node with a bad signature or type.
var ErrInvalidNode = errors.New("invalid B-tree node")

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	// Offset is the chunk's first element in dataset coordinates.
	Offset     []uint64
	FilterMask uint32
	// Size is the stored, possibly filtered, byte size.
	Size    uint32
	Address uint64
}

// Extent is a block of file space.
type Extent struct {
	Address uint64
	Size    uint64
}

// ReadChunkIndex returns every chunk in the v1 B-tree at address, in key
// order. rank is the dataset rank.
func ReadChunkIndex(r *binary.Reader, address uint64, rank int) ([]ChunkEntry, error) {
	var out []ChunkEntry
	if err := readChunkNode(r, address, rank, -1, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readChunkNode(r *binary.Reader, address uint64, rank, wantLevel int, out *[]ChunkEntry) error {
	nr := r.At(int64(address))
	hdr, err := nr.ReadBytes(8)
	if err != nil {
		return fmt.Errorf("chunk B-tree node at %d: %w", address, err)
	}
	if string(hdr[:4]) != string(signatureV1) || hdr[4] != nodeTypeChunk {
		return fmt.Errorf("%w: chunk node at %d", ErrInvalidNode, address)
	}
	level := int(hdr[5])
	if wantLevel >= 0 && level != wantLevel {
		return fmt.Errorf("%w: node at %d has level %d, parent expects %d", ErrInvalidNode, address, level, wantLevel)
	}
	used := int(r.ByteOrder().Uint16(hdr[6:8]))
	nr.Skip(int64(2 * nr.OffsetSize())) // siblings

	for i := 0; i < used; i++ {
		size, _ := nr.ReadUint32()
		mask, _ := nr.ReadUint32()
		offset := make([]uint64, rank)
		for d := range offset {
			offset[d], _ = nr.ReadUint64()
		}
		nr.Skip(8) // element-size dimension, always zero
		child, err := nr.ReadOffset()
		if err != nil {
			return fmt.Errorf("chunk B-tree node at %d: %w", address, err)
		}
		if level > 0 {
			if err := readChunkNode(r, child, rank, level-1, out); err != nil {
				return err
			}
			continue
		}
		if binary.IsUndefined(child) {
			continue
		}
		*out = append(*out, ChunkEntry{Offset: offset, FilterMask: mask, Size: size, Address: child})
	}
	return nil
}

// NodeSize is the on-disk size of a chunk B-tree node with room for 2K
// children.
func NodeSize(cfg binary.Config, rank, k int) int {
	key := 8 + 8*(rank+1)
	return 8 + 2*cfg.OffsetSize + (2*k+1)*key + 2*k*cfg.OffsetSize
}

// CompareOffsets orders chunk offsets the way the B-tree keys them.
func CompareOffsets(a, b []uint64) int {
	return slices.Compare(a, b)
}

type nodeKey struct {
	size   uint32
	mask   uint32
	offset []uint64
}

type child struct {
	first, last nodeKey
	address     uint64
}

// WriteChunkIndex writes a complete chunk B-tree for entries and returns the
// root address and every node written. Entries need not be sorted. With no
// entries the root is the undefined address.
func WriteChunkIndex(w io.WriterAt, cfg binary.Config, a *alloc.Allocator, entries []ChunkEntry, chunkDims []uint32, k int) (uint64, []Extent, error) {
	if len(entries) == 0 {
		return binary.Undefined, nil, nil
	}
	if k < 1 {
		k = DefaultK
	}
	rank := len(chunkDims)
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(x, y ChunkEntry) int { return CompareOffsets(x.Offset, y.Offset) })

	level := make([]child, len(sorted))
	for i, e := range sorted {
		end := make([]uint64, rank)
		for d := range end {
			end[d] = e.Offset[d] + uint64(chunkDims[d])
		}
		level[i] = child{
			first:   nodeKey{size: e.Size, mask: e.FilterMask, offset: e.Offset},
			last:    nodeKey{offset: end},
			address: e.Address,
		}
	}

	size := NodeSize(cfg, rank, k)
	var nodes []Extent
	for depth := 0; ; depth++ {
		groups := (len(level) + 2*k - 1) / (2 * k)
		addrs := make([]uint64, groups)
		for i := range addrs {
			addrs[i] = a.Alloc(uint64(size), alloc.KindIndex)
			nodes = append(nodes, Extent{Address: addrs[i], Size: uint64(size)})
		}
		parents := make([]child, groups)
		for g := 0; g < groups; g++ {
			members := level[g*2*k : min((g+1)*2*k, len(level))]
			left, right := binary.Undefined, binary.Undefined
			if g > 0 {
				left = addrs[g-1]
			}
			if g < groups-1 {
				right = addrs[g+1]
			}
			buf := encodeChunkNode(cfg, size, depth, left, right, members)
			if _, err := w.WriteAt(buf, int64(addrs[g])); err != nil {
				return 0, nil, err
			}
			parents[g] = child{first: members[0].first, last: members[len(members)-1].last, address: addrs[g]}
		}
		if groups == 1 {
			return addrs[0], nodes, nil
		}
		level = parents
	}
}

func encodeChunkNode(cfg binary.Config, size, depth int, left, right uint64, members []child) []byte {
	buf := make([]byte, size)
	w := binary.NewWriter(sliceWriter(buf), cfg)
	w.WriteBytes(signatureV1)
	w.WriteUint8(nodeTypeChunk)
	w.WriteUint8(uint8(depth))
	w.WriteUint16(uint16(len(members)))
	w.WriteOffset(left)
	w.WriteOffset(right)
	for _, m := range members {
		writeChunkKey(w, m.first)
		w.WriteOffset(m.address)
	}
	writeChunkKey(w, members[len(members)-1].last)
	return buf
}

func writeChunkKey(w *binary.Writer, k nodeKey) {
	w.WriteUint32(k.size)
	w.WriteUint32(k.mask)
	for _, o := range k.offset {
		w.WriteUint64(o)
	}
	w.WriteUint64(0)
}

type sliceWriter []byte

func (s sliceWriter) WriteAt(p []byte, off int64) (int, error) {
	return copy(s[off:], p), nil
}
