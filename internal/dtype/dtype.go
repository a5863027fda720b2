// Package dtype maps Go types onto HDF5 datatypes and converts element data
// between the two.
//
// The in-file type of a dataset or attribute is a *message.Datatype. The
// in-memory type is the Go element type of the caller's slice. Conversion
// follows these rules:
//
//   - integer and float classes convert between any widths and signedness,
//     clamping out-of-range values;
//   - fixed-length and variable-length strings convert to and from string
//     and [N]byte;
//   - compound types convert to and from structs whose fields match members
//     by name;
//   - arrays convert to and from Go arrays with the same element count;
//   - opaque types convert to and from [N]byte of the same size.
//
// Anything else is ErrTypeMismatch.
package dtype

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/heap"
	"github.com/robert-malhotra/go-arf/internal/message"
)

var (
	// ErrTypeMismatch is returned when a stored type and a Go type cannot be
	// converted into each other.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnsupported is returned for Go or HDF5 types this package has no
	// mapping for.
	ErrUnsupported = errors.New("unsupported type")
)

// Heap stores and fetches variable-length data. *heap.Global implements it.
type Heap interface {
	Read(id heap.ID) ([]byte, error)
	Insert(data []byte) (heap.ID, error)
}

// Context carries what element conversion needs from the file.
type Context struct {
	Config binary.Config
	// Heap may be nil when no variable-length data is involved.
	Heap Heap
}

var uuidType = reflect.TypeOf(uuid.UUID{})

// TagName is the struct tag naming compound members.
const TagName = "hdf5"

// FromGo returns the HDF5 type used to store Go values of type t. Strings
// map to variable-length UTF-8 strings, [N]byte to N-byte null-terminated
// strings, uuid.UUID to 16-byte opaque, other arrays to array types and
// structs to packed compound types.
func FromGo(t reflect.Type, cfg binary.Config) (*message.Datatype, error) {
	if t == uuidType {
		return message.NewOpaque(16, "uuid"), nil
	}
	switch t.Kind() {
	case reflect.Int8:
		return message.NewFixedPoint(1, true), nil
	case reflect.Int16:
		return message.NewFixedPoint(2, true), nil
	case reflect.Int32:
		return message.NewFixedPoint(4, true), nil
	case reflect.Int64, reflect.Int:
		return message.NewFixedPoint(8, true), nil
	case reflect.Uint8:
		return message.NewFixedPoint(1, false), nil
	case reflect.Uint16:
		return message.NewFixedPoint(2, false), nil
	case reflect.Uint32:
		return message.NewFixedPoint(4, false), nil
	case reflect.Uint64, reflect.Uint:
		return message.NewFixedPoint(8, false), nil
	case reflect.Float32:
		return message.NewFloat(4), nil
	case reflect.Float64:
		return message.NewFloat(8), nil
	case reflect.String:
		return message.NewVarLenString(message.CharsetUTF8, cfg.OffsetSize), nil
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return message.NewString(uint32(t.Len()), message.PadNullTerm, message.CharsetASCII), nil
		}
		base, err := FromGo(t.Elem(), cfg)
		if err != nil {
			return nil, err
		}
		return message.NewArray([]uint32{uint32(t.Len())}, base), nil
	case reflect.Struct:
		return fromStruct(t, cfg)
	}
	return nil, fmt.Errorf("%w: Go type %v", ErrUnsupported, t)
}

func fromStruct(t reflect.Type, cfg binary.Config) (*message.Datatype, error) {
	var members []message.CompoundMember
	var offset uint32
	for _, f := range fields(t) {
		mt, err := FromGo(t.Field(f.index).Type, cfg)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", t.Field(f.index).Name, err)
		}
		members = append(members, message.CompoundMember{Name: f.name, ByteOffset: offset, Type: mt})
		offset += mt.Size
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: struct %v has no exported fields", ErrUnsupported, t)
	}
	return message.NewCompound(offset, members), nil
}

type field struct {
	index int
	name  string
}

// fields lists the exported fields of a struct with their member names: the
// hdf5 tag if present, else the lower-cased field name. A "-" tag skips the
// field.
func fields(t reflect.Type) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := strings.ToLower(sf.Name)
		if tag, ok := sf.Tag.Lookup(TagName); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		out = append(out, field{index: i, name: name})
	}
	return out
}

// Identical reports whether values of Go type t are stored as dt without any
// conversion.
func Identical(dt *message.Datatype, t reflect.Type, cfg binary.Config) bool {
	want, err := FromGo(t, cfg)
	if err != nil {
		return false
	}
	return dt.Equal(want)
}

// IsNumeric reports whether dt is an integer or float type.
func IsNumeric(dt *message.Datatype) bool {
	return dt.Class == message.ClassFixedPoint || dt.Class == message.ClassFloatPoint
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func mismatch(dt *message.Datatype, t reflect.Type) error {
	return fmt.Errorf("%w: cannot convert between %s and %v", ErrTypeMismatch, dt, t)
}

var defaultConfig = binary.DefaultConfig()

func (c *Context) config() binary.Config {
	if c == nil {
		return defaultConfig
	}
	return c.Config
}

// GoType returns the natural Go type for values of dt, used when the caller
// does not supply one.
func GoType(dt *message.Datatype) (reflect.Type, error) {
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassBitfield:
		if err := checkNumeric(&message.Datatype{Class: message.ClassFixedPoint, Size: dt.Size}); err != nil {
			return nil, err
		}
		signed := dt.Signed()
		switch dt.Size {
		case 1:
			if signed {
				return reflect.TypeOf(int8(0)), nil
			}
			return reflect.TypeOf(uint8(0)), nil
		case 2:
			if signed {
				return reflect.TypeOf(int16(0)), nil
			}
			return reflect.TypeOf(uint16(0)), nil
		case 4:
			if signed {
				return reflect.TypeOf(int32(0)), nil
			}
			return reflect.TypeOf(uint32(0)), nil
		}
		if signed {
			return reflect.TypeOf(int64(0)), nil
		}
		return reflect.TypeOf(uint64(0)), nil
	case message.ClassFloatPoint:
		if dt.Size == 4 {
			return reflect.TypeOf(float32(0)), nil
		}
		return reflect.TypeOf(float64(0)), nil
	case message.ClassString:
		return reflect.TypeOf(""), nil
	case message.ClassVarLen:
		if dt.IsVarLenString() {
			return reflect.TypeOf(""), nil
		}
	case message.ClassOpaque:
		return reflect.ArrayOf(int(dt.Size), reflect.TypeOf(byte(0))), nil
	case message.ClassEnum:
		return GoType(dt.Base)
	case message.ClassArray:
		base, err := GoType(dt.Base)
		if err != nil {
			return nil, err
		}
		return reflect.ArrayOf(arrayLen(dt), base), nil
	case message.ClassCompound:
		sfs := make([]reflect.StructField, len(dt.Members))
		seen := make(map[string]bool)
		for i, m := range dt.Members {
			mt, err := GoType(m.Type)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			name := exportName(m.Name, i)
			if seen[name] {
				name = fmt.Sprintf("%s%d", name, i)
			}
			seen[name] = true
			sfs[i] = reflect.StructField{
				Name: name,
				Type: mt,
				Tag:  reflect.StructTag(fmt.Sprintf(`%s:%q`, TagName, m.Name)),
			}
		}
		return reflect.StructOf(sfs), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, dt)
}

// exportName turns a member name into an exported Go identifier.
func exportName(name string, i int) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9' && b.Len() > 0, r == '_' && b.Len() > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || s[0] == '_' {
		return fmt.Sprintf("F%d%s", i, s)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
