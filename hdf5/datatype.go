package hdf5

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/dtype"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// Unlimited marks a dimension of a maximum shape that can grow without bound.
const Unlimited = message.Unlimited

// Datatype describes how elements are encoded in the file.
type Datatype struct {
	m *message.Datatype
	// goType is set for types derived from Go values; variable-length
	// members are re-derived for files with narrower addresses.
	goType reflect.Type
}

// Predefined storage types.
var (
	Int8    = &Datatype{m: message.NewFixedPoint(1, true)}
	Int16   = &Datatype{m: message.NewFixedPoint(2, true)}
	Int32   = &Datatype{m: message.NewFixedPoint(4, true)}
	Int64   = &Datatype{m: message.NewFixedPoint(8, true)}
	Uint8   = &Datatype{m: message.NewFixedPoint(1, false)}
	Uint16  = &Datatype{m: message.NewFixedPoint(2, false)}
	Uint32  = &Datatype{m: message.NewFixedPoint(4, false)}
	Uint64  = &Datatype{m: message.NewFixedPoint(8, false)}
	Float32 = &Datatype{m: message.NewFloat(4)}
	Float64 = &Datatype{m: message.NewFloat(8)}
)

// TypeOf returns the storage type for Go values like v. v may be a value, a
// slice of values or a reflect.Type.
func TypeOf(v any) (*Datatype, error) {
	var t reflect.Type
	switch v := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil value has no type", ErrInvalidArgument)
	case reflect.Type:
		t = v
	default:
		t = reflect.TypeOf(v)
		if t.Kind() == reflect.Slice {
			t = t.Elem()
		}
	}
	m, err := dtype.FromGo(t, binary.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return &Datatype{m: m, goType: t}, nil
}

// FixedString returns a null-terminated ASCII string type of n bytes.
func FixedString(n int) *Datatype {
	return &Datatype{m: message.NewString(uint32(n), message.PadNullTerm, message.CharsetASCII)}
}

// VarString returns a variable-length UTF-8 string type.
func VarString() *Datatype {
	t := reflect.TypeOf("")
	return &Datatype{m: message.NewVarLenString(message.CharsetUTF8, 8), goType: t}
}

// Opaque returns an opaque type of n bytes with a descriptive tag.
func Opaque(n int, tag string) *Datatype {
	return &Datatype{m: message.NewOpaque(uint32(n), tag)}
}

// Size returns the encoded element size in bytes.
func (t *Datatype) Size() int { return int(t.m.Size) }

// Class returns the HDF5 type class name, e.g. "integer" or "compound".
func (t *Datatype) Class() string { return t.m.Class.String() }

// IsNumeric reports whether the type is an integer or floating-point type.
func (t *Datatype) IsNumeric() bool { return dtype.IsNumeric(t.m) }

// Members returns the member names of a compound type.
func (t *Datatype) Members() []string {
	names := make([]string, len(t.m.Members))
	for i, m := range t.m.Members {
		names[i] = m.Name
	}
	return names
}

// Equal reports whether two types have the same encoding.
func (t *Datatype) Equal(o *Datatype) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.m.Equal(o.m)
}

// GoType returns the Go type values of t are read into by default.
func (t *Datatype) GoType() (reflect.Type, error) {
	if t.goType != nil {
		return t.goType, nil
	}
	return dtype.GoType(t.m)
}

func (t *Datatype) String() string { return t.m.String() }

// forFile returns the message to store in a file with the given sizes.
func (t *Datatype) forFile(cfg binary.Config) (*message.Datatype, error) {
	if t == nil || t.m == nil {
		return nil, fmt.Errorf("%w: nil datatype", ErrInvalidArgument)
	}
	if t.goType != nil && cfg.OffsetSize != 8 {
		return dtype.FromGo(t.goType, cfg)
	}
	return t.m, nil
}

// Dataspace is the shape of a dataset or attribute.
type Dataspace struct {
	Dims    []uint64
	MaxDims []uint64
}

func dataspaceOf(m *message.Dataspace) Dataspace {
	if m.SpaceType != message.DataspaceSimple {
		return Dataspace{}
	}
	return Dataspace{Dims: clone(m.Dimensions), MaxDims: clone(m.Max())}
}

// Rank returns the number of dimensions; 0 for scalars.
func (s Dataspace) Rank() int { return len(s.Dims) }

// Len returns the number of elements.
func (s Dataspace) Len() uint64 {
	n := uint64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// Scalar reports whether the dataspace holds a single unshaped value.
func (s Dataspace) Scalar() bool { return len(s.Dims) == 0 }

// Extensible reports whether any dimension can grow.
func (s Dataspace) Extensible() bool {
	for i, m := range s.MaxDims {
		if m == Unlimited || m > s.Dims[i] {
			return true
		}
	}
	return false
}

// Hyperslab selects a regular pattern of blocks: along each dimension,
// Count blocks of Block elements starting at Offset, Stride apart. Nil
// Stride and Block default to all ones.
type Hyperslab struct {
	Offset []uint64
	Stride []uint64
	Count  []uint64
	Block  []uint64
}

func clone(s []uint64) []uint64 {
	if s == nil {
		return nil
	}
	return append([]uint64(nil), s...)
}
