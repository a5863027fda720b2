package layout

import (
	"errors"
	"fmt"
	"io"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/filter"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/metrics"
)

var (
	// ErrReadOnly is returned by Write on a store opened without a writer.
	ErrReadOnly = errors.New("layout: store is read-only")
	// ErrSelection is returned for a selection outside the dataset extent.
	ErrSelection = errors.New("layout: selection outside extent")
)

// Store reads and writes the elements of one dataset.
type Store interface {
	// Read returns the selected elements packed in row-major order.
	Read(sel Selection) ([]byte, error)
	// Write stores a packed buffer into the selected elements.
	Write(sel Selection, data []byte) error
	// StorageSize returns the bytes of file space holding raw data.
	StorageSize() uint64
	// Class returns the layout class the store implements.
	Class() message.LayoutClass
}

// Geometry is the shape information a store needs.
type Geometry struct {
	Dims     []uint64
	MaxDims  []uint64
	ElemSize int
}

// Elements returns the number of elements in the current extent.
func (g Geometry) Elements() uint64 {
	n := uint64(1)
	for _, d := range g.Dims {
		n *= d
	}
	return n
}

// Open returns the store described by a layout message. w and a may be nil
// for read-only access.
func Open(r *binary.Reader, w io.WriterAt, a *alloc.Allocator, l *message.DataLayout, g Geometry, p *filter.Pipeline) (Store, error) {
	switch l.Class {
	case message.LayoutCompact:
		return NewCompact(l.CompactData, g), nil
	case message.LayoutContiguous:
		c := NewContiguous(r, l.Address, l.Size, g)
		c.w = w
		return c, nil
	case message.LayoutChunked:
		entries, err := LoadIndex(r, l, g)
		if err != nil {
			return nil, err
		}
		c := NewChunked(r, l.ChunkDims, g, p, entries)
		c.edgeUnfiltered = l.Version >= 4 && l.ChunkFlags&0x01 != 0
		c.SetWriter(w, a)
		return c, nil
	}
	return nil, fmt.Errorf("%w: layout class %d", message.ErrUnsupported, l.Class)
}

func checkWrite(sel Selection, data []byte, g Geometry) error {
	if !sel.Within(g.Dims) {
		return ErrSelection
	}
	if want := sel.Len() * uint64(g.ElemSize); uint64(len(data)) != want {
		return fmt.Errorf("layout: write of %d bytes, selection needs %d", len(data), want)
	}
	return nil
}

// Compact holds raw data inside the object header.
type Compact struct {
	data []byte
	g    Geometry
}

func NewCompact(data []byte, g Geometry) *Compact {
	return &Compact{data: data, g: g}
}

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

func (c *Compact) StorageSize() uint64 { return uint64(len(c.data)) }

func (c *Compact) Read(sel Selection) ([]byte, error) {
	if !sel.Within(c.g.Dims) {
		return nil, ErrSelection
	}
	need := c.g.Elements() * uint64(c.g.ElemSize)
	if uint64(len(c.data)) < need {
		return nil, fmt.Errorf("layout: compact data has %d bytes, extent needs %d", len(c.data), need)
	}
	out := make([]byte, sel.Len()*uint64(c.g.ElemSize))
	transfer(make([]uint64, len(c.g.Dims)), c.g.Dims, c.data, sel, out, c.g.ElemSize, false)
	return out, nil
}

func (c *Compact) Write(Selection, []byte) error {
	return fmt.Errorf("%w: writing compact datasets", message.ErrUnsupported)
}

// Contiguous stores every element in one block of the file.
type Contiguous struct {
	r       *binary.Reader
	w       io.WriterAt
	Address uint64
	Size    uint64
	g       Geometry
}

func NewContiguous(r *binary.Reader, addr, size uint64, g Geometry) *Contiguous {
	return &Contiguous{r: r, Address: addr, Size: size, g: g}
}

// AllocContiguous reserves and zero-fills space for the whole extent.
func AllocContiguous(r *binary.Reader, w io.WriterAt, a *alloc.Allocator, g Geometry) (*Contiguous, error) {
	size := g.Elements() * uint64(g.ElemSize)
	c := &Contiguous{r: r, w: w, Address: binary.Undefined, g: g}
	if size == 0 {
		return c, nil
	}
	c.Address = a.Alloc(size, alloc.KindContiguous)
	c.Size = size
	if _, err := w.WriteAt(make([]byte, size), int64(c.Address)); err != nil {
		return nil, err
	}
	metrics.BytesWritten.WithLabelValues("chunk").Add(float64(size))
	return c, nil
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

func (c *Contiguous) StorageSize() uint64 {
	if binary.IsUndefined(c.Address) {
		return 0
	}
	return c.Size
}

func (c *Contiguous) load() ([]byte, error) {
	n := c.g.Elements() * uint64(c.g.ElemSize)
	if binary.IsUndefined(c.Address) {
		return make([]byte, n), nil
	}
	buf, err := c.r.At(int64(c.Address)).ReadBytes(int(n))
	if err != nil {
		return nil, fmt.Errorf("contiguous data at %d: %w", c.Address, err)
	}
	metrics.BytesRead.WithLabelValues("chunk").Add(float64(n))
	return buf, nil
}

func (c *Contiguous) Read(sel Selection) ([]byte, error) {
	if !sel.Within(c.g.Dims) {
		return nil, ErrSelection
	}
	if sel.covers(make([]uint64, len(c.g.Dims)), c.g.Dims) {
		return c.load()
	}
	buf, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make([]byte, sel.Len()*uint64(c.g.ElemSize))
	transfer(make([]uint64, len(c.g.Dims)), c.g.Dims, buf, sel, out, c.g.ElemSize, false)
	return out, nil
}

func (c *Contiguous) Write(sel Selection, data []byte) error {
	if c.w == nil {
		return ErrReadOnly
	}
	if err := checkWrite(sel, data, c.g); err != nil {
		return err
	}
	if binary.IsUndefined(c.Address) {
		return nil
	}
	buf, err := c.load()
	if err != nil {
		return err
	}
	transfer(make([]uint64, len(c.g.Dims)), c.g.Dims, buf, sel, data, c.g.ElemSize, true)
	if _, err := c.w.WriteAt(buf, int64(c.Address)); err != nil {
		return err
	}
	metrics.BytesWritten.WithLabelValues("chunk").Add(float64(len(buf)))
	return nil
}
