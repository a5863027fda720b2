package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	log "github.com/golang/glog"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	hbin "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/btree"
	"github.com/robert-malhotra/go-arf/internal/filter"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/metrics"
)

// maxCached is the number of decoded chunks kept per dataset.
const maxCached = 16

type chunk struct {
	btree.ChunkEntry
	// Bytes reserved at Address; a re-encoded chunk that fits is rewritten
	// in place.
	capacity uint64
}

// Chunked stores elements in fixed-size chunks, each optionally passed
// through a filter pipeline.
type Chunked struct {
	r        *hbin.Reader
	w        io.WriterAt
	a        *alloc.Allocator
	dims     []uint64
	g        Geometry
	pipeline *filter.Pipeline
	fill     []byte
	blank    []byte

	// Partial edge chunks are stored unfiltered.
	edgeUnfiltered bool

	chunks map[string]*chunk
	cache  map[string][]byte
	order  []string
	dirty  bool
	index  []btree.Extent
}

// NewChunked returns a chunked store over the given index entries.
func NewChunked(r *hbin.Reader, chunkDims []uint32, g Geometry, p *filter.Pipeline, entries []btree.ChunkEntry) *Chunked {
	if p == nil {
		p = &filter.Pipeline{}
	}
	c := &Chunked{
		r:        r,
		dims:     make([]uint64, len(chunkDims)),
		g:        g,
		pipeline: p,
		chunks:   make(map[string]*chunk, len(entries)),
		cache:    make(map[string][]byte),
	}
	for i, d := range chunkDims {
		c.dims[i] = uint64(d)
	}
	for _, e := range entries {
		c.chunks[chunkKey(e.Offset)] = &chunk{ChunkEntry: e, capacity: uint64(e.Size)}
	}
	return c
}

// SetWriter enables Write. Both arguments nil leaves the store read-only.
func (c *Chunked) SetWriter(w io.WriterAt, a *alloc.Allocator) {
	c.w, c.a = w, a
}

// SetFill sets the value of elements in chunks never written. A nil value
// means zero bytes.
func (c *Chunked) SetFill(v []byte) {
	c.fill = v
	c.blank = nil
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

// ChunkDims returns the chunk shape.
func (c *Chunked) ChunkDims() []uint64 { return slices.Clone(c.dims) }

// NumChunks returns the number of stored chunks.
func (c *Chunked) NumChunks() int { return len(c.chunks) }

// Dirty reports whether chunks were added or moved since the index was
// last written.
func (c *Chunked) Dirty() bool { return c.dirty }

func (c *Chunked) StorageSize() uint64 {
	var n uint64
	for _, ch := range c.chunks {
		n += uint64(ch.Size)
	}
	return n
}

// Entries returns the stored chunks sorted by offset.
func (c *Chunked) Entries() []btree.ChunkEntry {
	out := make([]btree.ChunkEntry, 0, len(c.chunks))
	for _, ch := range c.chunks {
		out = append(out, ch.ChunkEntry)
	}
	slices.SortFunc(out, func(a, b btree.ChunkEntry) int { return btree.CompareOffsets(a.Offset, b.Offset) })
	return out
}

func (c *Chunked) chunkBytes() int {
	n := c.g.ElemSize
	for _, d := range c.dims {
		n *= int(d)
	}
	return n
}

func chunkKey(offset []uint64) string {
	b := make([]byte, 0, 8*len(offset))
	for _, o := range offset {
		b = binary.BigEndian.AppendUint64(b, o)
	}
	return string(b)
}

// isEdge reports whether the chunk at origin extends past the extent.
func (c *Chunked) isEdge(origin []uint64) bool {
	for d, o := range origin {
		if o+c.dims[d] > c.g.Dims[d] {
			return true
		}
	}
	return false
}

func (c *Chunked) blankChunk() []byte {
	if c.blank == nil {
		c.blank = make([]byte, c.chunkBytes())
		if len(c.fill) == c.g.ElemSize && !allZero(c.fill) {
			for i := 0; i < len(c.blank); i += len(c.fill) {
				copy(c.blank[i:], c.fill)
			}
		}
	}
	return c.blank
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// load returns the decoded chunk at origin. The result must not be
// modified.
func (c *Chunked) load(origin []uint64) ([]byte, error) {
	key := chunkKey(origin)
	if buf, ok := c.cache[key]; ok {
		return buf, nil
	}
	ch, ok := c.chunks[key]
	if !ok {
		return c.blankChunk(), nil
	}
	raw, err := c.r.At(int64(ch.Address)).ReadBytes(int(ch.Size))
	if err != nil {
		return nil, fmt.Errorf("chunk %v at %d: %w", origin, ch.Address, err)
	}
	metrics.BytesRead.WithLabelValues("chunk").Add(float64(len(raw)))
	buf := raw
	if !c.pipeline.Empty() && !(c.edgeUnfiltered && c.isEdge(origin)) {
		if buf, err = c.pipeline.Decode(raw, ch.FilterMask); err != nil {
			return nil, fmt.Errorf("chunk %v: %w", origin, err)
		}
	}
	if len(buf) < c.chunkBytes() {
		return nil, fmt.Errorf("chunk %v decoded to %d bytes, want %d", origin, len(buf), c.chunkBytes())
	}
	buf = buf[:c.chunkBytes()]
	c.remember(key, buf)
	return buf, nil
}

func (c *Chunked) remember(key string, buf []byte) {
	if _, ok := c.cache[key]; !ok {
		if len(c.order) >= maxCached {
			delete(c.cache, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.cache[key] = buf
}

func (c *Chunked) Read(sel Selection) ([]byte, error) {
	if !sel.Within(c.g.Dims) {
		return nil, ErrSelection
	}
	out := make([]byte, sel.Len()*uint64(c.g.ElemSize))
	err := sel.chunkOrigins(c.dims, func(origin []uint64) error {
		buf, err := c.load(origin)
		if err != nil {
			return err
		}
		transfer(origin, c.dims, buf, sel, out, c.g.ElemSize, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// inExtent returns the part of the chunk at origin inside the extent.
func (c *Chunked) inExtent(origin []uint64) []uint64 {
	n := make([]uint64, len(origin))
	for d, o := range origin {
		n[d] = min(c.dims[d], c.g.Dims[d]-o)
	}
	return n
}

// Write stores data into the selected elements. Chunks the selection
// covers only in part are read, modified and written back.
func (c *Chunked) Write(sel Selection, data []byte) error {
	if c.w == nil {
		return ErrReadOnly
	}
	if err := checkWrite(sel, data, c.g); err != nil {
		return err
	}
	return sel.chunkOrigins(c.dims, func(origin []uint64) error {
		var buf []byte
		if sel.covers(origin, c.inExtent(origin)) {
			buf = bytes.Clone(c.blankChunk())
		} else {
			old, err := c.load(origin)
			if err != nil {
				return err
			}
			buf = bytes.Clone(old)
		}
		transfer(origin, c.dims, buf, sel, data, c.g.ElemSize, true)
		return c.store(slices.Clone(origin), buf)
	})
}

// store encodes and writes one chunk. A chunk that still fits its old
// space is overwritten; otherwise new space is allocated and the old
// space released.
func (c *Chunked) store(origin []uint64, buf []byte) error {
	key := chunkKey(origin)
	enc, mask := buf, uint32(0)
	if !c.pipeline.Empty() {
		var err error
		if enc, mask, err = c.pipeline.Encode(buf); err != nil {
			return fmt.Errorf("chunk %v: %w", origin, err)
		}
	}
	size := uint64(len(enc))
	ch, ok := c.chunks[key]
	switch {
	case ok && size <= ch.capacity:
		if ch.FilterMask != mask || uint64(ch.Size) != size {
			c.dirty = true
		}
	case ok:
		c.a.Free(ch.Address, ch.capacity, alloc.KindChunk)
		ch.Address = c.a.Alloc(size, alloc.KindChunk)
		ch.capacity = size
		c.dirty = true
	default:
		ch = &chunk{ChunkEntry: btree.ChunkEntry{Offset: origin}, capacity: size}
		ch.Address = c.a.Alloc(size, alloc.KindChunk)
		c.chunks[key] = ch
		c.dirty = true
	}
	ch.Size, ch.FilterMask = uint32(size), mask
	if _, err := c.w.WriteAt(enc, int64(ch.Address)); err != nil {
		return fmt.Errorf("chunk %v at %d: %w", origin, ch.Address, err)
	}
	log.V(2).Infof("wrote chunk %v: %d bytes at %d", origin, size, ch.Address)
	metrics.ChunksWritten.Inc()
	metrics.BytesWritten.WithLabelValues("chunk").Add(float64(size))
	c.remember(key, buf)
	return nil
}

// Resize changes the extent. Chunks left wholly outside a smaller extent
// are dropped, and elements of edge chunks beyond it are reset to the
// fill value so a later grow does not expose stale data.
func (c *Chunked) Resize(dims []uint64) error {
	old := c.g.Dims
	c.g.Dims = slices.Clone(dims)
	shrunk := false
	for d := range dims {
		if dims[d] < old[d] {
			shrunk = true
		}
	}
	if !shrunk {
		return nil
	}
	for key, ch := range c.chunks {
		outside, edge := false, false
		for d, o := range ch.Offset {
			if o >= dims[d] {
				outside = true
			} else if o+c.dims[d] > dims[d] && dims[d] < old[d] {
				edge = true
			}
		}
		switch {
		case outside:
			if c.a != nil {
				c.a.Free(ch.Address, ch.capacity, alloc.KindChunk)
			}
			delete(c.chunks, key)
			delete(c.cache, key)
			c.order = slices.DeleteFunc(c.order, func(k string) bool { return k == key })
			c.dirty = true
		case edge:
			if c.w == nil {
				return ErrReadOnly
			}
			if err := c.trim(ch.Offset); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Chunked) trim(origin []uint64) error {
	buf, err := c.load(origin)
	if err != nil {
		return err
	}
	keep := Box(origin, c.inExtent(origin))
	packed := make([]byte, keep.Len()*uint64(c.g.ElemSize))
	transfer(origin, c.dims, buf, keep, packed, c.g.ElemSize, false)
	fresh := bytes.Clone(c.blankChunk())
	transfer(origin, c.dims, fresh, keep, packed, c.g.ElemSize, true)
	return c.store(slices.Clone(origin), fresh)
}

// WriteIndex writes a version 1 B-tree over the stored chunks and returns
// its root address, releasing the space of the previously written index.
func (c *Chunked) WriteIndex(cfg hbin.Config, k int) (uint64, error) {
	if c.w == nil {
		return 0, ErrReadOnly
	}
	dims := make([]uint32, len(c.dims))
	for i, d := range c.dims {
		dims[i] = uint32(d)
	}
	root, extents, err := btree.WriteChunkIndex(c.w, cfg, c.a, c.Entries(), dims, k)
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, e := range c.index {
		c.a.Free(e.Address, e.Size, alloc.KindIndex)
	}
	for _, e := range extents {
		n += e.Size
	}
	metrics.BytesWritten.WithLabelValues("meta").Add(float64(n))
	log.V(2).Infof("wrote chunk index: %d chunks, %d nodes, root %d", len(c.chunks), len(extents), root)
	c.index = extents
	c.dirty = false
	return root, nil
}
