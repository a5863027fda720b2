package hdf5

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-arf/internal/dtype"
	"github.com/robert-malhotra/go-arf/internal/layout"
	"github.com/robert-malhotra/go-arf/internal/metrics"
)

// DefaultPacketChunk is the number of records per chunk of a new packet
// table.
const DefaultPacketChunk = 1024

// PacketTable is an append-only, one-dimensional table of records stored
// as a chunked dataset with an unlimited extent.
type PacketTable struct {
	ds *Dataset
}

// CreatePacketTable creates an empty packet table of records of type t.
// Tables are chunked by DefaultPacketChunk records and pass through deflate
// at level 0 unless options say otherwise; WithCompression(-1) drops the
// filter.
func (g *Group) CreatePacketTable(name string, t *Datatype, opts ...DatasetOption) (*PacketTable, error) {
	o := defaultPacketTableOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.maxShape = []uint64{Unlimited}
	st, err := g.acquire()
	if err != nil {
		return nil, wrap("create packet table", name, err)
	}
	defer g.release()
	full := joinPath(g.path, name)
	child, err := createDataset(st, name, t, []uint64{0}, o)
	if err != nil {
		return nil, wrap("create packet table", full, err)
	}
	return &PacketTable{ds: &Dataset{Node: newNode(child, full)}}, nil
}

// OpenPacketTable opens an existing dataset as a packet table. The dataset
// must be one-dimensional, chunked and unlimited.
func (g *Group) OpenPacketTable(p string) (*PacketTable, error) {
	d, err := g.OpenDataset(p)
	if err != nil {
		return nil, err
	}
	ok := false
	d.view(func(ds *dataset) {
		ok = len(ds.dims()) == 1 && ds.chunked != nil && ds.space.Max()[0] == Unlimited
	})
	if !ok {
		d.Close()
		return nil, wrap("open packet table", d.path, fmt.Errorf("%w: not an extensible one-dimensional chunked dataset", ErrInvalidArgument))
	}
	return &PacketTable{ds: d}, nil
}

// Append adds records to the end of the table. data must be a slice whose
// element type maps to exactly the table's record type.
func (pt *PacketTable) Append(data any) (err error) {
	st, err := pt.ds.acquire()
	if err != nil {
		return wrap("append", pt.ds.path, err)
	}
	defer pt.ds.release()
	m := metrics.Ops.Start("append")
	defer m.EndErr(&err)
	return wrap("append", pt.ds.path, appendRecords(st, reflect.ValueOf(data)))
}

func appendRecords(st *objState, v reflect.Value) error {
	if err := st.writable(); err != nil {
		return err
	}
	ds := st.ds
	if ds.readOnly != nil {
		return ds.readOnly
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Errorf("%w: records must be a slice", ErrInvalidArgument)
	}
	if v.Len() == 0 {
		return nil
	}
	if elem := v.Type().Elem(); !dtype.Identical(ds.dt, elem, st.f.cfg) {
		return fmt.Errorf("%w: appending %v to records of %v", ErrTypeMismatch, elem, ds.dt)
	}
	buf, err := dtype.Encode(ds.dt, v, st.f.ctx())
	if err != nil {
		return err
	}
	n0, k := ds.dims()[0], uint64(v.Len())
	if err := resize(st, []uint64{n0 + k}); err != nil {
		return err
	}
	return ds.store.Write(layout.Box([]uint64{n0}, []uint64{k}), buf)
}

// Len returns the number of records.
func (pt *PacketTable) Len() uint64 { return pt.ds.Len() }

// Dataset returns the dataset behind the table. It stays valid until the
// table is closed.
func (pt *PacketTable) Dataset() *Dataset { return pt.ds }

func (pt *PacketTable) Close() error { return pt.ds.Close() }
