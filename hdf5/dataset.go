package hdf5

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-arf/internal/dtype"
	"github.com/robert-malhotra/go-arf/internal/filter"
	"github.com/robert-malhotra/go-arf/internal/layout"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/metrics"
)

// Dataset represents an HDF5 dataset.
type Dataset struct {
	Node
}

// dataset is the shared state of an open dataset.
type dataset struct {
	dt       *message.Datatype
	space    *message.Dataspace
	layout   *message.DataLayout
	filters  *message.FilterPipeline
	pipeline *filter.Pipeline
	store    layout.Store
	// chunked is the store when the layout is chunked.
	chunked *layout.Chunked
	// readOnly is set for layouts this package can read but not extend.
	readOnly error
}

func (ds *dataset) dims() []uint64 { return ds.space.Dimensions }

func (ds *dataset) geometry() layout.Geometry {
	return layout.Geometry{Dims: clone(ds.space.Dimensions), MaxDims: clone(ds.space.Max()), ElemSize: int(ds.dt.Size)}
}

// openDataset builds the dataset state from st's header.
func (f *File) openDataset(st *objState) (*dataset, error) {
	h := st.hdr
	ds := &dataset{
		dt:      h.Datatype(),
		space:   h.Dataspace(),
		layout:  h.Layout(),
		filters: h.FilterPipeline(),
	}
	switch {
	case ds.dt == nil:
		return nil, fmt.Errorf("%w: dataset has no datatype", ErrNotDataset)
	case ds.space == nil:
		return nil, fmt.Errorf("%w: dataset has no dataspace", ErrNotDataset)
	}
	var err error
	if ds.pipeline, err = filter.NewPipeline(ds.filters, int(ds.dt.Size)); err != nil {
		return nil, err
	}

	w := f.w
	switch {
	case ds.layout.Class == message.LayoutCompact:
		ds.readOnly = fmt.Errorf("%w: writing compact datasets", ErrUnsupported)
	case ds.layout.Class == message.LayoutChunked && ds.layout.IndexType != message.ChunkIndexBTreeV1:
		ds.readOnly = fmt.Errorf("%w: writing chunk index type %d", ErrUnsupported, ds.layout.IndexType)
	}
	if ds.readOnly != nil {
		w = nil
	}
	if ds.store, err = layout.Open(f.r, w, f.alloc, ds.layout, ds.geometry(), ds.pipeline); err != nil {
		return nil, err
	}
	if c, ok := ds.store.(*layout.Chunked); ok {
		ds.chunked = c
		if fv := h.FillValue(); fv != nil && len(fv.Value) == int(ds.dt.Size) {
			c.SetFill(fv.Value)
		}
	}
	return ds, nil
}

// OpenDataset opens a dataset by relative or absolute path.
func (g *Group) OpenDataset(p string) (*Dataset, error) {
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("open dataset", p, err)
	}
	defer g.release()
	target, full, err := g.lookup(st, p)
	if err != nil {
		return nil, wrap("open dataset", p, err)
	}
	if target.ds == nil {
		return nil, wrap("open dataset", full, ErrNotDataset)
	}
	return &Dataset{Node: newNode(target, full)}, nil
}

// Reopen returns a new handle on the same dataset.
func (d *Dataset) Reopen() (*Dataset, error) {
	st, err := d.acquire()
	if err != nil {
		return nil, wrap("reopen", d.path, err)
	}
	defer d.release()
	return &Dataset{Node: newNode(st, d.path)}, nil
}

// view runs fn on the dataset state with the file locked.
func (d *Dataset) view(fn func(ds *dataset)) bool {
	st, err := d.acquire()
	if err != nil {
		return false
	}
	defer d.release()
	fn(st.ds)
	return true
}

// Shape returns the current extent. It is nil for scalar datasets and for
// closed handles.
func (d *Dataset) Shape() []uint64 {
	var out []uint64
	d.view(func(ds *dataset) { out = clone(ds.space.Dimensions) })
	return out
}

// MaxShape returns the maximum extent; Unlimited marks unbounded dimensions.
func (d *Dataset) MaxShape() []uint64 {
	var out []uint64
	d.view(func(ds *dataset) {
		if ds.space.SpaceType == message.DataspaceSimple {
			out = clone(ds.space.Max())
		}
	})
	return out
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	var n int
	d.view(func(ds *dataset) { n = len(ds.space.Dimensions) })
	return n
}

// Len returns the extent of the first dimension, or 1 for a scalar.
func (d *Dataset) Len() uint64 {
	var n uint64
	d.view(func(ds *dataset) {
		switch {
		case ds.space.SpaceType == message.DataspaceScalar:
			n = 1
		case len(ds.space.Dimensions) > 0:
			n = ds.space.Dimensions[0]
		}
	})
	return n
}

// NumElements returns the number of elements in the current extent.
func (d *Dataset) NumElements() uint64 {
	var n uint64
	d.view(func(ds *dataset) { n = ds.space.NumElements() })
	return n
}

// Datatype returns the storage type.
func (d *Dataset) Datatype() *Datatype {
	var t *Datatype
	d.view(func(ds *dataset) { t = &Datatype{m: ds.dt} })
	return t
}

// Dataspace returns the current and maximum extent.
func (d *Dataset) Dataspace() Dataspace {
	var s Dataspace
	d.view(func(ds *dataset) { s = dataspaceOf(ds.space) })
	return s
}

// Chunks returns the chunk shape, or nil when the dataset is not chunked.
func (d *Dataset) Chunks() []uint64 {
	var out []uint64
	d.view(func(ds *dataset) {
		if ds.chunked != nil {
			out = ds.chunked.ChunkDims()
		}
	})
	return out
}

// Filters returns the names of the filters applied to each chunk, in the
// order they run on write.
func (d *Dataset) Filters() []string {
	var out []string
	d.view(func(ds *dataset) {
		if ds.filters == nil {
			return
		}
		for _, fi := range ds.filters.Filters {
			name := filter.NameOf(fi.ID)
			if fi.Name != "" && name == fmt.Sprintf("filter%d", fi.ID) {
				name = fi.Name
			}
			out = append(out, name)
		}
	})
	return out
}

// StorageSize returns the bytes of file space holding the raw data.
func (d *Dataset) StorageSize() uint64 {
	var n uint64
	d.view(func(ds *dataset) { n = ds.store.StorageSize() })
	return n
}

// Layout returns the storage layout: "compact", "contiguous" or "chunked".
func (d *Dataset) Layout() string {
	var s string
	d.view(func(ds *dataset) { s = ds.layout.Class.String() })
	return s
}

// sliceDest returns the slice a read of n elements decodes into. dest is a
// pointer to a slice, which is resized, or a slice with room for n.
func sliceDest(dest any, n uint64) (reflect.Value, func(), error) {
	rv := reflect.ValueOf(dest)
	switch {
	case rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Slice:
		s := rv.Elem()
		if uint64(s.Cap()) < n {
			s = reflect.MakeSlice(s.Type(), int(n), int(n))
		} else {
			s = s.Slice(0, int(n))
		}
		return s, func() { rv.Elem().Set(s) }, nil
	case rv.Kind() == reflect.Slice:
		if uint64(rv.Len()) < n {
			return reflect.Value{}, nil, fmt.Errorf("%w: slice of %d for %d elements", ErrInvalidArgument, rv.Len(), n)
		}
		return rv.Slice(0, int(n)), func() {}, nil
	}
	return reflect.Value{}, nil, fmt.Errorf("%w: destination must be a slice or pointer to slice, got %T", ErrInvalidArgument, dest)
}

// readSelection reads sel into dest.
func (d *Dataset) readSelection(op string, dest any, sel func(ds *dataset) (layout.Selection, error)) (err error) {
	st, err := d.acquire()
	if err != nil {
		return wrap(op, d.path, err)
	}
	defer d.release()
	m := metrics.Ops.Start("read")
	defer m.EndErr(&err)

	ds := st.ds
	s, err := sel(ds)
	if err != nil {
		return wrap(op, d.path, err)
	}
	var n uint64
	if s != nil {
		n = s.Len()
	}
	out, commit, err := sliceDest(dest, n)
	if err != nil {
		return wrap(op, d.path, err)
	}
	if err := dtype.Check(ds.dt, out.Type().Elem()); err != nil {
		return wrap(op, d.path, err)
	}
	if n > 0 {
		data, err := ds.store.Read(s)
		if err != nil {
			return wrap(op, d.path, err)
		}
		if err := dtype.Decode(ds.dt, data, out, st.f.ctx()); err != nil {
			return wrap(op, d.path, err)
		}
	}
	commit()
	return nil
}

// Read reads the whole extent, in row-major order, into dest: a pointer to
// a slice, which is resized to fit, or a slice that is long enough.
func (d *Dataset) Read(dest any) error {
	return d.readSelection("read", dest, func(ds *dataset) (layout.Selection, error) {
		if ds.space.SpaceType == message.DataspaceNull {
			return nil, nil
		}
		return layout.All(ds.dims()), nil
	})
}

// ReadRange reads count rows along the first dimension, starting at offset
// and stride rows apart. The last row read must lie inside the extent.
func (d *Dataset) ReadRange(dest any, count, offset, stride uint64) error {
	return d.readSelection("read range", dest, func(ds *dataset) (layout.Selection, error) {
		dims := ds.dims()
		if len(dims) == 0 {
			return nil, fmt.Errorf("%w: range read of a scalar dataset", ErrInvalidArgument)
		}
		if stride == 0 {
			return nil, fmt.Errorf("%w: zero stride", ErrInvalidArgument)
		}
		if count == 0 {
			return emptySelection(len(dims)), nil
		}
		if offset >= dims[0] || count-1 > (dims[0]-1-offset)/stride {
			return nil, fmt.Errorf("%w: %d rows from %d step %d in %d", ErrRange, count, offset, stride, dims[0])
		}
		start := make([]uint64, len(dims))
		strides := make([]uint64, len(dims))
		counts := clone(dims)
		blocks := make([]uint64, len(dims))
		for i := range dims {
			strides[i], blocks[i] = 1, 1
		}
		start[0], strides[0], counts[0] = offset, stride, count
		return layout.Hyperslab(start, strides, counts, blocks)
	})
}

// ReadHyperslab reads an N-dimensional selection into dest.
func (d *Dataset) ReadHyperslab(dest any, hs Hyperslab) error {
	return d.readSelection("read hyperslab", dest, func(ds *dataset) (layout.Selection, error) {
		return hyperslab(hs, ds.dims())
	})
}

func emptySelection(rank int) layout.Selection {
	return layout.Box(make([]uint64, rank), make([]uint64, rank))
}

// hyperslab validates hs against dims and converts it to a selection.
func hyperslab(hs Hyperslab, dims []uint64) (layout.Selection, error) {
	rank := len(dims)
	if len(hs.Offset) != rank || len(hs.Count) != rank {
		return nil, fmt.Errorf("%w: hyperslab rank %d for a rank %d dataset", ErrInvalidArgument, len(hs.Offset), rank)
	}
	stride, block := hs.Stride, hs.Block
	if block == nil {
		block = ones(rank)
	}
	if stride == nil {
		stride = block
	}
	if len(stride) != rank || len(block) != rank {
		return nil, fmt.Errorf("%w: hyperslab stride or block rank", ErrInvalidArgument)
	}
	for i := range dims {
		if block[i] == 0 || stride[i] == 0 || (hs.Count[i] > 1 && stride[i] < block[i]) {
			return nil, fmt.Errorf("%w: stride %d and block %d in dimension %d", ErrInvalidArgument, stride[i], block[i], i)
		}
		if hs.Count[i] == 0 {
			return emptySelection(rank), nil
		}
		last := hs.Offset[i] + (hs.Count[i]-1)*stride[i] + block[i]
		if (hs.Count[i]-1) > dims[i]/stride[i] || last > dims[i] || last < hs.Offset[i] {
			return nil, fmt.Errorf("%w: dimension %d selects past %d", ErrRange, i, dims[i])
		}
	}
	return layout.Hyperslab(hs.Offset, stride, hs.Count, block)
}

func ones(n int) []uint64 {
	s := make([]uint64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

// syncIndex writes the chunk index of a dataset whose chunks changed and
// points the layout at it.
func (st *objState) syncIndex() error {
	ds := st.ds
	if ds == nil || ds.chunked == nil || !ds.chunked.Dirty() {
		return nil
	}
	root, err := ds.chunked.WriteIndex(st.f.cfg, st.f.sb.ChunkBTreeK())
	if err != nil {
		return err
	}
	if root != ds.layout.Address {
		ds.layout.Address = root
		st.dirty = true
	}
	return nil
}
