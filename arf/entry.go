package arf

import (
	"fmt"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robert-malhotra/go-arf/hdf5"
)

// Entry is a top-level group holding the data recorded in one trial or
// epoch.
type Entry struct {
	*hdf5.Group
	id uuid.UUID
}

// Attr is a named attribute value.
type Attr struct {
	Name  string
	Value any
}

type EntryOption func(*entryOptions)

type entryOptions struct {
	attrs   []Attr
	replace bool
	id      uuid.UUID
}

// WithAttrs adds attributes to a new entry.
func WithAttrs(attrs ...Attr) EntryOption {
	return func(o *entryOptions) { o.attrs = append(o.attrs, attrs...) }
}

// WithUUID gives a new entry a known uuid instead of a random one.
func WithUUID(id uuid.UUID) EntryOption {
	return func(o *entryOptions) { o.id = id }
}

// WithReplace unlinks an existing object of the same name first.
func WithReplace() EntryOption {
	return func(o *entryOptions) { o.replace = true }
}

// CreateEntry creates an entry stamped with a timestamp, in any form
// ConvertTimestamp accepts, and a uuid.
func (f *File) CreateEntry(name string, timestamp any, opts ...EntryOption) (*Entry, error) {
	ts, err := ConvertTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	o := &entryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.id == uuid.Nil {
		o.id = uuid.New()
	}
	if o.replace && f.Contains(name) {
		if err := f.Unlink(name); err != nil {
			return nil, err
		}
	}
	g, err := f.CreateGroup(name)
	if err != nil {
		return nil, err
	}
	w := g.AttrWriter().
		Set("timestamp", ts.attr()).
		Set("uuid", o.id.String())
	for _, a := range o.attrs {
		w.Set(a.Name, a.Value)
	}
	if err := w.Err(); err != nil {
		g.Close()
		if uerr := f.Unlink(name); uerr != nil {
			log.Warningf("removing half-made entry %s: %v", name, uerr)
		}
		return nil, err
	}
	log.V(1).Infof("created entry %s at %s (%s)", g.Path(), ts, o.id)
	return &Entry{Group: g, id: o.id}, nil
}

// OpenEntry opens an existing entry. An entry without a readable uuid gets
// uuid.Nil.
func (f *File) OpenEntry(name string) (*Entry, error) {
	g, err := f.OpenGroup(name)
	if err != nil {
		return nil, err
	}
	return &Entry{Group: g, id: readUUID(g)}, nil
}

func readUUID(g *hdf5.Group) uuid.UUID {
	if !g.HasAttr("uuid") {
		return uuid.Nil
	}
	var id uuid.UUID
	if err := g.ReadAttr("uuid", &id); err != nil {
		log.Warningf("%s: unreadable uuid: %v", g.Path(), err)
		return uuid.Nil
	}
	return id
}

// UUID returns the entry's uuid.
func (e *Entry) UUID() uuid.UUID { return e.id }

// Timestamp reads the entry's timestamp attribute.
func (e *Entry) Timestamp() (Timestamp, error) {
	var ts [2]int64
	if err := e.ReadAttr("timestamp", &ts); err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Sec: ts[0], Usec: ts[1]}, nil
}

type DatasetOption func(*datasetOptions)

type datasetOptions struct {
	h5 []hdf5.DatasetOption
}

// Replace unlinks an existing object of the same name first.
func Replace() DatasetOption {
	return HDF5Options(hdf5.WithReplace())
}

// Compression sets the deflate level; a negative level stores the data
// uncompressed.
func Compression(level int) DatasetOption {
	return HDF5Options(hdf5.WithCompression(level))
}

// ChunkSize sets the number of elements per chunk of one-dimensional data.
func ChunkSize(n uint64) DatasetOption {
	return HDF5Options(hdf5.WithChunkSize(n))
}

// SamplingRate records the sampling rate in Hz, which sampled data needs.
func SamplingRate(hz float64) DatasetOption {
	return HDF5Options(hdf5.WithAttribute("sampling_rate", hz))
}

// DatasetAttrs adds attributes to a new dataset.
func DatasetAttrs(attrs ...Attr) DatasetOption {
	return func(o *datasetOptions) {
		for _, a := range attrs {
			o.h5 = append(o.h5, hdf5.WithAttribute(a.Name, a.Value))
		}
	}
}

// HDF5Options passes options through to the hdf5 package.
func HDF5Options(opts ...hdf5.DatasetOption) DatasetOption {
	return func(o *datasetOptions) { o.h5 = append(o.h5, opts...) }
}

func (e *Entry) tagged(units string, dt DataType, opts []DatasetOption) []hdf5.DatasetOption {
	o := &datasetOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return append(o.h5,
		hdf5.WithAttribute("datatype", int32(dt)),
		hdf5.WithAttribute("units", units))
}

// CreateDataset stores data, a slice of numbers, strings or records, in a
// new dataset of the entry tagged with its units and data type code. The
// dataset can be extended along its first dimension.
func (e *Entry) CreateDataset(name string, data any, units string, dt DataType, opts ...DatasetOption) (*hdf5.Dataset, error) {
	d, err := e.CreateDatasetFrom(name, data, e.tagged(units, dt, opts)...)
	if err != nil {
		return nil, err
	}
	log.V(1).Infof("created %s dataset %s", dt, d.Path())
	return d, nil
}

// CreatePacketTable creates an empty packet table of records of type t,
// tagged like CreateDataset.
func (e *Entry) CreatePacketTable(name string, t *hdf5.Datatype, units string, dt DataType, opts ...DatasetOption) (*hdf5.PacketTable, error) {
	pt, err := e.Group.CreatePacketTable(name, t, e.tagged(units, dt, opts)...)
	if err != nil {
		return nil, err
	}
	log.V(1).Infof("created %s packet table %s", dt, pt.Dataset().Path())
	return pt, nil
}

// Units reads a dataset's units attribute; datasets without one have
// empty units.
func Units(d *hdf5.Dataset) string {
	s, err := d.AttrString("units")
	if err != nil {
		return ""
	}
	return s
}

// DataTypeOf reads a dataset's datatype attribute.
func DataTypeOf(d *hdf5.Dataset) (DataType, error) {
	v, err := d.AttrInt("datatype")
	if err != nil {
		return TypeUndefined, err
	}
	if v < 0 || v > 1<<31-1 {
		return TypeUndefined, fmt.Errorf("%w: datatype %d", hdf5.ErrInvalidArgument, v)
	}
	return DataType(v), nil
}
