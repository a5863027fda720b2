package btree

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/heap"
)

var cfg = binpkg.DefaultConfig()

func chunkEntries(n int, chunk uint64) []ChunkEntry {
	out := make([]ChunkEntry, n)
	for i := range out {
		// Reverse order, to check that the writer sorts.
		j := n - 1 - i
		out[i] = ChunkEntry{
			Offset:     []uint64{uint64(j) * chunk, 0},
			Size:       uint32(100 + j),
			FilterMask: uint32(j % 2),
			Address:    uint64(1_000_000 + j*4096),
		}
	}
	return out
}

func TestChunkIndexRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		entries int
		k       int
		nodes   int
	}{
		{"single", 1, DefaultK, 1},
		{"full leaf", 64, DefaultK, 1},
		{"two levels", 200, DefaultK, 5},
		{"three levels", 40, 2, 10 + 3 + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf binpkg.Buffer
			a := alloc.New(512)
			chunkDims := []uint32{16, 4}
			root, nodes, err := WriteChunkIndex(&buf, cfg, a, chunkEntries(tt.entries, 16), chunkDims, tt.k)
			if err != nil {
				t.Fatal(err)
			}
			if len(nodes) != tt.nodes {
				t.Errorf("wrote %d nodes, want %d", len(nodes), tt.nodes)
			}
			for _, n := range nodes {
				if n.Size != uint64(NodeSize(cfg, 2, tt.k)) {
					t.Errorf("node size %d", n.Size)
				}
			}
			if a.Stats().ByKind[alloc.KindIndex].Allocations != uint64(tt.nodes) {
				t.Error("nodes not allocated as index space")
			}

			got, err := ReadChunkIndex(binpkg.NewReader(&buf, cfg), root, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.entries {
				t.Fatalf("read %d entries, want %d", len(got), tt.entries)
			}
			for i, e := range got {
				if e.Offset[0] != uint64(i)*16 || e.Offset[1] != 0 {
					t.Fatalf("entry %d offset %v", i, e.Offset)
				}
				if e.Size != uint32(100+i) || e.FilterMask != uint32(i%2) || e.Address != uint64(1_000_000+i*4096) {
					t.Errorf("entry %d = %+v", i, e)
				}
			}
		})
	}
}

func TestChunkIndexEmpty(t *testing.T) {
	root, nodes, err := WriteChunkIndex(&binpkg.Buffer{}, cfg, alloc.New(0), nil, []uint32{8}, DefaultK)
	if err != nil || root != binpkg.Undefined || nodes != nil {
		t.Errorf("empty index: root %d nodes %v err %v", root, nodes, err)
	}
}

func TestChunkIndexBadNode(t *testing.T) {
	data := make([]byte, 64)
	copy(data, "TREE")
	data[4] = nodeTypeGroup
	if _, err := ReadChunkIndex(binpkg.NewBytesReader(data, cfg), 0, 1); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("group node read as chunk node: %v", err)
	}
}

func TestCompareOffsets(t *testing.T) {
	if CompareOffsets([]uint64{1, 9}, []uint64{2, 0}) >= 0 || CompareOffsets([]uint64{3, 1}, []uint64{3, 1}) != 0 {
		t.Error("CompareOffsets")
	}
}

// groupFile builds a symbol-table group: a local heap, one SNOD with a hard
// and a soft link, and a single-leaf group B-tree at address 0.
func groupFile(t *testing.T) (*binpkg.Reader, *heap.Local) {
	t.Helper()
	var buf binpkg.Buffer
	le := binary.LittleEndian

	names := []byte("\x00\x00\x00\x00\x00\x00\x00\x00data\x00\x00\x00\x00alias\x00\x00\x00/data\x00\x00\x00")
	const heapAt, heapData, snodAt = 1000, 1100, 2000
	w := binpkg.NewWriter(&buf, cfg).At(heapAt)
	w.WriteBytes([]byte("HEAP"))
	w.WriteZeros(4)
	w.WriteLength(uint64(len(names)))
	w.WriteLength(binpkg.Undefined)
	w.WriteOffset(heapData)
	buf.WriteAt(names, heapData)

	snod := []byte("SNOD\x01\x00")
	snod = le.AppendUint16(snod, 2)
	snod = le.AppendUint64(snod, 8)
	snod = le.AppendUint64(snod, 0x5000)
	snod = le.AppendUint32(snod, cacheNone)
	snod = append(snod, make([]byte, 4+16)...)
	snod = le.AppendUint64(snod, 16)
	snod = le.AppendUint64(snod, binpkg.Undefined)
	snod = le.AppendUint32(snod, cacheSoftLink)
	snod = append(snod, 0, 0, 0, 0)
	snod = le.AppendUint32(snod, 24)
	snod = append(snod, make([]byte, 12)...)
	buf.WriteAt(snod, snodAt)

	tree := []byte("TREE\x00\x00")
	tree = le.AppendUint16(tree, 1)
	tree = le.AppendUint64(tree, binpkg.Undefined)
	tree = le.AppendUint64(tree, binpkg.Undefined)
	tree = le.AppendUint64(tree, 0)
	tree = le.AppendUint64(tree, snodAt)
	tree = le.AppendUint64(tree, 16)
	buf.WriteAt(tree, 0)

	r := binpkg.NewReader(&buf, cfg)
	h, err := heap.ReadLocal(r, heapAt)
	if err != nil {
		t.Fatal(err)
	}
	return r, h
}

func TestReadGroupEntries(t *testing.T) {
	r, h := groupFile(t)
	entries, err := ReadGroupEntries(r, 0, h)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if e := entries[0]; e.Name != "data" || e.ObjectAddress != 0x5000 || e.Soft {
		t.Errorf("hard link = %+v", e)
	}
	if e := entries[1]; e.Name != "alias" || !e.Soft || e.SoftPath != "/data" {
		t.Errorf("soft link = %+v", e)
	}
}

// v2 tree helpers: rank 1, chunk 10 elements of 4 bytes.
var geom = ChunkGeometry{ChunkDims: []uint32{10}, ElemSize: 4}

func v2HeaderBytes(recType uint8, nodeSize uint32, recSize uint16, depth uint16, root uint64, rootRecs uint16, total uint64) []byte {
	le := binary.LittleEndian
	b := []byte("BTHD\x00")
	b = append(b, recType)
	b = le.AppendUint32(b, nodeSize)
	b = le.AppendUint16(b, recSize)
	b = le.AppendUint16(b, depth)
	b = append(b, 100, 40)
	b = le.AppendUint64(b, root)
	b = le.AppendUint16(b, rootRecs)
	b = le.AppendUint64(b, total)
	return le.AppendUint32(b, binpkg.Lookup3Checksum(b))
}

func v2Leaf(recType uint8, records ...[]byte) []byte {
	b := append([]byte("BTLF\x00"), recType)
	for _, r := range records {
		b = append(b, r...)
	}
	return binary.LittleEndian.AppendUint32(b, 0) // checksum is not verified
}

func plainRecord(addr, scaled uint64) []byte {
	b := binary.LittleEndian.AppendUint64(nil, addr)
	return binary.LittleEndian.AppendUint64(b, scaled)
}

func TestChunkIndexV2Leaf(t *testing.T) {
	var buf binpkg.Buffer
	buf.WriteAt(v2HeaderBytes(TypeChunk, 512, 16, 0, 100, 2, 2), 0)
	buf.WriteAt(v2Leaf(TypeChunk, plainRecord(0x800, 0), plainRecord(0x900, 1)), 100)

	got, err := ReadChunkIndexV2(binpkg.NewReader(&buf, cfg), 0, geom)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Offset[0] != 10 || got[1].Address != 0x900 || got[0].Size != 40 {
		t.Errorf("entries = %+v", got)
	}
}

func TestChunkIndexV2Filtered(t *testing.T) {
	// 40-byte chunks need a 2-byte size field.
	if w := filteredSizeWidth(40); w != 2 {
		t.Fatalf("filteredSizeWidth(40) = %d", w)
	}
	rec := binary.LittleEndian.AppendUint64(nil, 0x700)
	rec = binary.LittleEndian.AppendUint16(rec, 33)
	rec = binary.LittleEndian.AppendUint32(rec, 1)
	rec = binary.LittleEndian.AppendUint64(rec, 3)

	var buf binpkg.Buffer
	buf.WriteAt(v2HeaderBytes(TypeFilteredChunk, 512, uint16(len(rec)), 0, 100, 1, 1), 0)
	buf.WriteAt(v2Leaf(TypeFilteredChunk, rec), 100)
	got, err := ReadChunkIndexV2(binpkg.NewReader(&buf, cfg), 0, geom)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Size != 33 || got[0].FilterMask != 1 || got[0].Offset[0] != 30 {
		t.Errorf("entries = %+v", got)
	}
}

func TestChunkIndexV2Internal(t *testing.T) {
	// Node size 58 leaves room for 3 leaf records and 1 internal record.
	const nodeSize = 58
	var buf binpkg.Buffer
	buf.WriteAt(v2HeaderBytes(TypeChunk, nodeSize, 16, 1, 100, 1, 6), 0)

	root := append([]byte("BTIN\x00"), TypeChunk)
	root = append(root, plainRecord(0x1300, 3)...)
	root = binary.LittleEndian.AppendUint64(root, 200)
	root = append(root, 3)
	root = binary.LittleEndian.AppendUint64(root, 300)
	root = append(root, 2)
	buf.WriteAt(root, 100)
	buf.WriteAt(v2Leaf(TypeChunk, plainRecord(0x1000, 0), plainRecord(0x1100, 1), plainRecord(0x1200, 2)), 200)
	buf.WriteAt(v2Leaf(TypeChunk, plainRecord(0x1400, 4), plainRecord(0x1500, 5)), 300)

	got, err := ReadChunkIndexV2(binpkg.NewReader(&buf, cfg), 0, geom)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("read %d entries", len(got))
	}
	for i, e := range got {
		if e.Offset[0] != uint64(i*10) || e.Address != uint64(0x1000+i*0x100) {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
}

func TestChunkIndexV2BadChecksum(t *testing.T) {
	hdr := v2HeaderBytes(TypeChunk, 512, 16, 0, 100, 0, 0)
	hdr[8] ^= 1
	if _, err := ReadChunkIndexV2(binpkg.NewBytesReader(hdr, cfg), 0, geom); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("expected ErrInvalidNode, got %v", err)
	}
}
