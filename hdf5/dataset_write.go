package hdf5

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/dtype"
	"github.com/robert-malhotra/go-arf/internal/filter"
	"github.com/robert-malhotra/go-arf/internal/layout"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/metrics"
)

// CreateDataset creates a dataset of the given type and shape. The layout
// is chunked when the maximum shape differs from the shape, a filter is
// requested or chunks are given, and contiguous otherwise.
func (g *Group) CreateDataset(name string, t *Datatype, shape []uint64, opts ...DatasetOption) (*Dataset, error) {
	o := defaultDatasetOptions()
	for _, opt := range opts {
		opt(o)
	}
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("create dataset", name, err)
	}
	defer g.release()
	full := joinPath(g.path, name)
	child, err := createDataset(st, name, t, shape, o)
	if err != nil {
		return nil, wrap("create dataset", full, err)
	}
	return &Dataset{Node: newNode(child, full)}, nil
}

// CreateDatasetFrom creates a dataset holding data, a slice or array whose
// element type gives the storage type. The dataset is one-dimensional
// unless WithShape is given, and can grow along its first dimension.
func (g *Group) CreateDatasetFrom(name string, data any, opts ...DatasetOption) (*Dataset, error) {
	o := defaultDatasetOptions()
	for _, opt := range opts {
		opt(o)
	}
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("create dataset", name, err)
	}
	defer g.release()
	full := joinPath(g.path, name)

	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, wrap("create dataset", full, fmt.Errorf("%w: data must be a slice, got %T", ErrInvalidArgument, data))
	}
	t, err := TypeOf(v.Type().Elem())
	if err != nil {
		return nil, wrap("create dataset", full, err)
	}
	shape := o.shape
	if shape == nil {
		shape = []uint64{uint64(v.Len())}
	}
	if len(shape) == 0 || product(shape) != uint64(v.Len()) {
		return nil, wrap("create dataset", full, fmt.Errorf("%w: %d elements for shape %v", ErrInvalidArgument, v.Len(), shape))
	}
	if o.maxShape == nil {
		o.maxShape = append([]uint64{Unlimited}, shape[1:]...)
	}

	child, err := createDataset(st, name, t, shape, o)
	if err != nil {
		return nil, wrap("create dataset", full, err)
	}
	if err := writeAll(child, v); err != nil {
		return nil, wrap("create dataset", full, err)
	}
	return &Dataset{Node: newNode(child, full)}, nil
}

func product(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// createDataset validates the request, links a new dataset into st and
// returns its state. The caller holds the file lock.
func createDataset(st *objState, name string, t *Datatype, shape []uint64, o *datasetOptions) (*objState, error) {
	f := st.f
	if err := st.writable(); err != nil {
		return nil, err
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	dt, err := t.forFile(f.cfg)
	if err != nil {
		return nil, err
	}
	if dt.Size == 0 {
		return nil, fmt.Errorf("%w: zero-size datatype", ErrInvalidArgument)
	}

	rank := len(shape)
	maxShape := o.maxShape
	if maxShape == nil {
		maxShape = shape
	}
	if len(maxShape) != rank {
		return nil, fmt.Errorf("%w: max shape %v for shape %v", ErrInvalidArgument, maxShape, shape)
	}
	for i := range shape {
		if maxShape[i] != Unlimited && maxShape[i] < shape[i] {
			return nil, fmt.Errorf("%w: max shape %v below shape %v", ErrInvalidArgument, maxShape, shape)
		}
	}
	filters, err := pipelineFor(o, dt.Size)
	if err != nil {
		return nil, err
	}
	chunked := filters != nil || o.chunks != nil || !slices.Equal(shape, maxShape)

	space := message.NewScalarDataspace()
	if rank > 0 {
		var max []uint64
		if !slices.Equal(shape, maxShape) {
			max = maxShape
		}
		space = message.NewSimpleDataspace(shape, max)
	}
	g := layout.Geometry{Dims: clone(shape), MaxDims: clone(maxShape), ElemSize: int(dt.Size)}

	var lm *message.DataLayout
	var chunk32 []uint32
	if chunked {
		if rank == 0 {
			return nil, fmt.Errorf("%w: cannot chunk a scalar dataspace", ErrInvalidArgument)
		}
		chunks, err := chooseChunks(shape, maxShape, o.chunks, int(dt.Size))
		if err != nil {
			return nil, err
		}
		if chunk32, err = narrowChunks(chunks, uint64(dt.Size)); err != nil {
			return nil, err
		}
		lm = message.NewChunkedLayout(binary.Undefined, chunk32, dt.Size)
	} else {
		lm = message.NewContiguousLayout(binary.Undefined, 0)
	}

	msgs := []message.Message{space, dt, message.NewFillValue(nil), lm}
	if filters != nil {
		msgs = append(msgs, filters)
	}
	for _, a := range o.attributes {
		if a.name == "" {
			return nil, fmt.Errorf("%w: empty attribute name", ErrInvalidArgument)
		}
		m, err := attrMessage(a.name, a.value, f)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.name, err)
		}
		msgs = append(msgs, m)
	}

	if err := prepareLink(st, name, o.replace); err != nil {
		return nil, err
	}
	pipeline, err := filter.NewPipeline(filters, int(dt.Size))
	if err != nil {
		return nil, err
	}
	ds := &dataset{dt: dt, space: space, layout: lm, filters: filters, pipeline: pipeline}
	if chunked {
		c := layout.NewChunked(f.r, chunk32, g, pipeline, nil)
		c.SetWriter(f.w, f.alloc)
		ds.store, ds.chunked = c, c
	} else {
		c, err := layout.AllocContiguous(f.r, f.w, f.alloc, g)
		if err != nil {
			return nil, err
		}
		lm.Address, lm.Size = c.Address, c.Size
		ds.store = c
	}

	child, err := f.newObject(msgs, st, name)
	if err != nil {
		return nil, err
	}
	child.ds = ds
	addLink(st, name, child)
	return child, nil
}

// pipelineFor returns the filter pipeline the options ask for, or nil.
// Shuffle runs before compression and the checksum last.
func pipelineFor(o *datasetOptions, elemSize uint32) (*message.FilterPipeline, error) {
	var infos []message.FilterInfo
	if o.shuffle {
		infos = append(infos, filter.Info(message.FilterShuffle, elemSize))
	}
	if o.compression > 9 {
		return nil, fmt.Errorf("%w: deflate level %d", ErrInvalidArgument, o.compression)
	}
	if o.compression >= 0 {
		infos = append(infos, filter.Info(message.FilterDeflate, uint32(o.compression)))
	}
	if o.snappy {
		infos = append(infos, filter.Info(message.FilterSnappy))
	}
	if o.fletcher32 {
		infos = append(infos, filter.Info(message.FilterFletcher32))
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return &message.FilterPipeline{Version: 2, Filters: infos}, nil
}

// chooseChunks validates requested chunk dimensions or guesses them.
// Empty extensible dimensions are guessed as if they held 1024 elements.
func chooseChunks(shape, maxShape, given []uint64, elemSize int) ([]uint64, error) {
	if given != nil {
		if len(given) != len(shape) {
			return nil, fmt.Errorf("%w: chunks %v for shape %v", ErrInvalidArgument, given, shape)
		}
		for i, c := range given {
			if c == 0 || (maxShape[i] != Unlimited && c > maxShape[i]) {
				return nil, fmt.Errorf("%w: chunks %v for max shape %v", ErrInvalidArgument, given, maxShape)
			}
		}
		return clone(given), nil
	}
	guess := clone(shape)
	for i := range guess {
		if guess[i] == 0 && maxShape[i] == Unlimited {
			guess[i] = 1024
		}
	}
	chunks, err := GuessChunk(guess, elemSize)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		if maxShape[i] != Unlimited && chunks[i] > maxShape[i] {
			chunks[i] = max(maxShape[i], 1)
		}
	}
	return chunks, nil
}

// narrowChunks converts chunk dimensions to their stored width; a chunk
// must also stay under 4 GiB.
func narrowChunks(chunks []uint64, elemSize uint64) ([]uint32, error) {
	out := make([]uint32, len(chunks))
	bytes := elemSize
	for i, c := range chunks {
		if c > math.MaxUint32 {
			return nil, fmt.Errorf("%w: chunk dimension %d", ErrInvalidArgument, c)
		}
		out[i] = uint32(c)
		if bytes > math.MaxUint32/c {
			return nil, fmt.Errorf("%w: chunk of %v is too large", ErrInvalidArgument, chunks)
		}
		bytes *= c
	}
	return out, nil
}

// Write replaces the contents of the dataset with data, a flat slice in
// row-major order. When data holds more rows than the first dimension, the
// dataset is extended first; fewer rows is an error.
func (d *Dataset) Write(data any) (err error) {
	st, err := d.acquire()
	if err != nil {
		return wrap("write", d.path, err)
	}
	defer d.release()
	m := metrics.Ops.Start("write")
	defer m.EndErr(&err)
	return wrap("write", d.path, writeAll(st, reflect.ValueOf(data)))
}

func writeAll(st *objState, v reflect.Value) error {
	if err := st.writable(); err != nil {
		return err
	}
	ds := st.ds
	if ds.readOnly != nil {
		return ds.readOnly
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Errorf("%w: data must be a slice", ErrInvalidArgument)
	}
	if ds.space.SpaceType == message.DataspaceNull {
		return fmt.Errorf("%w: dataset has a null dataspace", ErrInvalidArgument)
	}
	if err := dtype.CheckEncode(ds.dt, v.Type().Elem()); err != nil {
		return err
	}
	n := uint64(v.Len())
	dims := clone(ds.dims())
	if len(dims) == 0 {
		if n != 1 {
			return fmt.Errorf("%w: %d elements for a scalar dataset", ErrInvalidArgument, n)
		}
	} else if inner := product(dims[1:]); inner == 0 {
		if n != 0 {
			return fmt.Errorf("%w: %d elements for an empty row shape", ErrInvalidArgument, n)
		}
	} else {
		if n%inner != 0 {
			return fmt.Errorf("%w: %d elements is not a whole number of %d-element rows", ErrInvalidArgument, n, inner)
		}
		rows := n / inner
		if rows < dims[0] {
			return fmt.Errorf("%w: %d rows cannot shrink a dataset of %d", ErrInvalidArgument, rows, dims[0])
		}
		if rows > dims[0] {
			dims[0] = rows
			if err := resize(st, dims); err != nil {
				return err
			}
		}
	}
	if n == 0 {
		return nil
	}
	buf, err := dtype.Encode(ds.dt, v, st.f.ctx())
	if err != nil {
		return err
	}
	return ds.store.Write(layout.All(dims), buf)
}

// Resize changes the extent. Dimensions can only grow, up to the maximum
// shape, and only chunked datasets can change size at all.
func (d *Dataset) Resize(dims ...uint64) error {
	st, err := d.acquire()
	if err != nil {
		return wrap("resize", d.path, err)
	}
	defer d.release()
	if err := st.writable(); err != nil {
		return wrap("resize", d.path, err)
	}
	return wrap("resize", d.path, resize(st, dims))
}

func resize(st *objState, dims []uint64) error {
	ds := st.ds
	cur, max := ds.dims(), ds.space.Max()
	if len(dims) != len(cur) {
		return fmt.Errorf("%w: rank %d for a rank %d dataset", ErrInvalidArgument, len(dims), len(cur))
	}
	if slices.Equal(dims, cur) {
		return nil
	}
	if ds.chunked == nil {
		return fmt.Errorf("%w: only chunked datasets can be resized", ErrInvalidArgument)
	}
	if ds.readOnly != nil {
		return ds.readOnly
	}
	for i := range dims {
		if dims[i] < cur[i] {
			return fmt.Errorf("%w: dimension %d cannot shrink from %d to %d", ErrInvalidArgument, i, cur[i], dims[i])
		}
		if max[i] != Unlimited && dims[i] > max[i] {
			return fmt.Errorf("%w: dimension %d exceeds its maximum %d", ErrInvalidArgument, i, max[i])
		}
	}
	if ds.space.MaxDims == nil {
		ds.space.MaxDims = clone(cur)
	}
	ds.space.Dimensions = clone(dims)
	if err := ds.chunked.Resize(dims); err != nil {
		return err
	}
	st.dirty = true
	return nil
}
