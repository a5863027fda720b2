package heap

import (
	"fmt"
	"io"
	"sync"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/metrics"
)

// MinCollectionSize is the smallest global heap collection written.
const MinCollectionSize = 4096

var collectionSignature = []byte("GCOL")

// ID addresses one object in a global heap collection.
type ID struct {
	Collection uint64
	Index      uint32
}

// IsNull reports whether the ID refers to no object, as stored for empty
// variable-length values.
func (id ID) IsNull() bool { return id.Collection == 0 }

// VLenSize is the on-disk size of a variable-length descriptor: a 4-byte
// sequence length followed by a heap ID.
func VLenSize(cfg binary.Config) int { return 4 + cfg.OffsetSize + 4 }

// DecodeVLen decodes a variable-length descriptor.
func DecodeVLen(b []byte, cfg binary.Config) (uint32, ID) {
	order := cfg.ByteOrder
	n := uint32(binary.DecodeUint(b[:4], order))
	addr := binary.DecodeUint(b[4:4+cfg.OffsetSize], order)
	idx := uint32(binary.DecodeUint(b[4+cfg.OffsetSize:8+cfg.OffsetSize], order))
	return n, ID{Collection: addr, Index: idx}
}

// EncodeVLen writes a variable-length descriptor into b.
func EncodeVLen(b []byte, length uint32, id ID, cfg binary.Config) {
	order := cfg.ByteOrder
	binary.EncodeUint(b[:4], uint64(length), order)
	binary.EncodeUint(b[4:4+cfg.OffsetSize], id.Collection, order)
	binary.EncodeUint(b[4+cfg.OffsetSize:8+cfg.OffsetSize], uint64(id.Index), order)
}

// Collection is one decoded global heap collection.
type Collection struct {
	Address uint64
	Size    uint64
	objects map[uint32][]byte

	// Set on the collection currently receiving inserts.
	image     []byte
	used      int
	nextIndex uint32
}

func (c *Collection) Object(index uint32) ([]byte, error) {
	obj, ok := c.objects[index]
	if !ok {
		return nil, fmt.Errorf("%w: no object %d in collection at %d", ErrInvalidHeap, index, c.Address)
	}
	return obj, nil
}

func (c *Collection) Len() int { return len(c.objects) }

// Both headers are padded to a multiple of eight bytes.
func collectionHeaderSize(cfg binary.Config) int { return pad8(8 + cfg.LengthSize) }

func objectHeaderSize(cfg binary.Config) int { return pad8(8 + cfg.LengthSize) }

// ReadCollection decodes the collection at address.
func ReadCollection(r *binary.Reader, address uint64) (*Collection, error) {
	hr := r.At(int64(address))
	hdr, err := hr.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	if string(hdr[:4]) != string(collectionSignature) || hdr[4] != 1 {
		return nil, fmt.Errorf("%w: global heap collection at %d", ErrInvalidHeap, address)
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	cfg := r.Config()
	if size < uint64(collectionHeaderSize(cfg)) {
		return nil, fmt.Errorf("%w: collection size %d", ErrInvalidHeap, size)
	}
	image, err := r.At(int64(address)).ReadBytes(int(size))
	if err != nil {
		return nil, err
	}

	c := &Collection{Address: address, Size: size, objects: make(map[uint32][]byte)}
	or := binary.NewBytesReader(image, cfg).At(int64(collectionHeaderSize(cfg)))
	for int(or.Pos())+objectHeaderSize(cfg) <= len(image) {
		idx, _ := or.ReadUint16()
		if idx == 0 {
			break // free space runs to the end of the collection
		}
		or.Skip(6) // reference count, reserved
		n, err := or.ReadLength()
		if err != nil {
			return nil, err
		}
		or.Align(8)
		data, err := or.ReadBytes(int(n))
		if err != nil {
			return nil, fmt.Errorf("%w: object %d overruns collection", ErrInvalidHeap, idx)
		}
		or.Align(8)
		c.objects[uint32(idx)] = data
		if uint32(idx) >= c.nextIndex {
			c.nextIndex = uint32(idx) + 1
		}
	}
	return c, nil
}

// Global reads and appends global heap objects for one file. Collections
// are cached once read. Inserts go into a single open collection until it
// fills, after which a new one is allocated.
type Global struct {
	mu    sync.Mutex
	r     *binary.Reader
	w     io.WriterAt
	alloc *alloc.Allocator
	cache map[uint64]*Collection
	open  *Collection
}

// NewGlobal returns a heap manager. w and a may be nil for read-only files.
func NewGlobal(r *binary.Reader, w io.WriterAt, a *alloc.Allocator) *Global {
	return &Global{r: r, w: w, alloc: a, cache: make(map[uint64]*Collection)}
}

// Read returns the object id refers to.
func (g *Global) Read(id ID) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cache[id.Collection]
	if !ok {
		var err error
		if c, err = ReadCollection(g.r, id.Collection); err != nil {
			return nil, err
		}
		g.cache[id.Collection] = c
	}
	return c.Object(id.Index)
}

// Insert stores data as a new heap object.
func (g *Global) Insert(data []byte) (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.w == nil || g.alloc == nil {
		return ID{}, fmt.Errorf("heap: insert into read-only file")
	}
	cfg := g.r.Config()
	ohs := objectHeaderSize(cfg)
	need := ohs + pad8(len(data))

	c := g.open
	if c != nil {
		free := len(c.image) - c.used
		if c.nextIndex > 0xffff || (need != free && need+ohs > free) {
			c = nil
		}
	}
	if c == nil {
		size := max(MinCollectionSize, pad8(collectionHeaderSize(cfg)+need+ohs))
		c = &Collection{
			Address:   g.alloc.Alloc(uint64(size), alloc.KindHeap),
			Size:      uint64(size),
			objects:   make(map[uint32][]byte),
			image:     make([]byte, size),
			used:      collectionHeaderSize(cfg),
			nextIndex: 1,
		}
		w := binary.NewWriter(sliceWriter(c.image), cfg)
		w.WriteBytes(collectionSignature)
		w.WriteUint8(1)
		w.WriteZeros(3)
		w.WriteLength(uint64(size))
		g.open = c
		g.cache[c.Address] = c
	}

	start := c.used
	idx := c.nextIndex
	w := binary.NewWriter(sliceWriter(c.image), cfg).At(int64(start))
	w.WriteUint16(uint16(idx))
	w.WriteUint16(1)
	w.WriteZeros(4)
	w.WriteLength(uint64(len(data)))
	w.At(int64(start + ohs)).WriteBytes(data)
	c.used += need
	end := c.used
	if free := len(c.image) - c.used; free > 0 {
		fw := w.At(int64(c.used))
		fw.WriteZeros(8)
		fw.WriteLength(uint64(free))
		end += ohs
	}
	if start == collectionHeaderSize(cfg) {
		start, end = 0, len(c.image)
	}
	if _, err := g.w.WriteAt(c.image[start:end], int64(c.Address)+int64(start)); err != nil {
		return ID{}, err
	}
	metrics.BytesWritten.WithLabelValues("heap").Add(float64(end - start))

	c.objects[idx] = append([]byte(nil), data...)
	c.nextIndex++
	return ID{Collection: c.Address, Index: idx}, nil
}

type sliceWriter []byte

func (s sliceWriter) WriteAt(p []byte, off int64) (int, error) {
	return copy(s[off:], p), nil
}

func pad8(n int) int { return (n + 7) &^ 7 }
