package dtype

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-arf/internal/heap"
	"github.com/robert-malhotra/go-arf/internal/message"
)

type encodeFunc func(b []byte, v reflect.Value, ctx *Context) error

// Encode converts the elements of src, a slice or array, to dt's encoding.
func Encode(dt *message.Datatype, src reflect.Value, ctx *Context) ([]byte, error) {
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: encode source must be a slice, got %v", ErrUnsupported, src.Type())
	}
	size := int(dt.Size)
	n := src.Len()
	out := make([]byte, n*size)
	elem := src.Type().Elem()
	if src.Kind() == reflect.Slice && fastPath(dt, elem) {
		if _, err := binary.Encode(out, binary.LittleEndian, src.Interface()); err != nil {
			return nil, err
		}
		return out, nil
	}
	enc, err := newEncoder(dt, elem)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := enc(out[i*size:(i+1)*size], src.Index(i), ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fastPath reports whether elements can be copied as little-endian values
// without per-element conversion.
// CheckEncode reports whether values of Go type t can be written as dt.
func CheckEncode(dt *message.Datatype, t reflect.Type) error {
	if fastPath(dt, t) {
		return nil
	}
	_, err := newEncoder(dt, t)
	return err
}

func fastPath(dt *message.Datatype, t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		return false
	}
	return IsNumeric(dt) && dt.ByteOrder() == message.OrderLE && dt.BitOffset == 0 &&
		Identical(dt, t, defaultConfig)
}

func newEncoder(dt *message.Datatype, t reflect.Type) (encodeFunc, error) {
	switch {
	case isNumericKind(t.Kind()):
		if IsNumeric(dt) || dt.Class == message.ClassEnum {
			if err := checkNumeric(dt); err != nil {
				return nil, err
			}
			return func(b []byte, v reflect.Value, _ *Context) error {
				storeNumber(dt, b, getNumber(v))
				return nil
			}, nil
		}
	case t.Kind() == reflect.String:
		if dt.Class == message.ClassString {
			return func(b []byte, v reflect.Value, _ *Context) error {
				putFixedString(dt, b, []byte(v.String()))
				return nil
			}, nil
		}
		if dt.IsVarLenString() {
			return func(b []byte, v reflect.Value, ctx *Context) error {
				return putVarLen(b, []byte(v.String()), ctx)
			}, nil
		}
	case isByteArray(t):
		switch {
		case dt.Class == message.ClassOpaque && int(dt.Size) == t.Len():
			return func(b []byte, v reflect.Value, _ *Context) error {
				reflect.Copy(reflect.ValueOf(b), v)
				return nil
			}, nil
		case dt.Class == message.ClassString:
			return func(b []byte, v reflect.Value, _ *Context) error {
				putFixedString(dt, b, trimNul(byteArray(v)))
				return nil
			}, nil
		case dt.IsVarLenString():
			return func(b []byte, v reflect.Value, ctx *Context) error {
				return putVarLen(b, trimNul(byteArray(v)), ctx)
			}, nil
		}
	case t.Kind() == reflect.Array:
		if dt.Class == message.ClassArray && arrayLen(dt) == t.Len() {
			base, err := newEncoder(dt.Base, t.Elem())
			if err != nil {
				return nil, err
			}
			step := int(dt.Base.Size)
			return func(b []byte, v reflect.Value, ctx *Context) error {
				for i := 0; i < v.Len(); i++ {
					if err := base(b[i*step:(i+1)*step], v.Index(i), ctx); err != nil {
						return err
					}
				}
				return nil
			}, nil
		}
	case t.Kind() == reflect.Struct:
		if dt.Class == message.ClassCompound {
			return structEncoder(dt, t)
		}
	}
	return nil, mismatch(dt, t)
}

// structEncoder requires the struct fields and the compound members to
// match one to one by name.
func structEncoder(dt *message.Datatype, t reflect.Type) (encodeFunc, error) {
	fs := fields(t)
	if len(fs) != len(dt.Members) {
		return nil, fmt.Errorf("%w: %v has %d fields, %s has %d members", ErrTypeMismatch, t, len(fs), dt, len(dt.Members))
	}
	type part struct {
		index  int
		offset int
		size   int
		enc    encodeFunc
	}
	parts := make([]part, len(fs))
	for i, f := range fs {
		m, ok := dt.Member(f.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no member %q", ErrTypeMismatch, dt, f.name)
		}
		enc, err := newEncoder(m.Type, t.Field(f.index).Type)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", f.name, err)
		}
		parts[i] = part{index: f.index, offset: int(m.ByteOffset), size: int(m.Type.Size), enc: enc}
	}
	return func(b []byte, v reflect.Value, ctx *Context) error {
		for _, p := range parts {
			if err := p.enc(b[p.offset:p.offset+p.size], v.Field(p.index), ctx); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func putFixedString(dt *message.Datatype, b, s []byte) {
	limit := len(b)
	if dt.StringPadding() == message.PadNullTerm && limit > 0 {
		limit--
	}
	n := copy(b[:limit], s)
	if dt.StringPadding() == message.PadSpacePad {
		for i := n; i < len(b); i++ {
			b[i] = ' '
		}
	}
}

// putVarLen stores s in the heap and writes its descriptor. Empty values
// are stored as a null reference.
func putVarLen(b, s []byte, ctx *Context) error {
	var id heap.ID
	if len(s) > 0 {
		if ctx == nil || ctx.Heap == nil {
			return fmt.Errorf("%w: variable-length data needs a heap", ErrUnsupported)
		}
		var err error
		if id, err = ctx.Heap.Insert(s); err != nil {
			return err
		}
	}
	heap.EncodeVLen(b, uint32(len(s)), id, ctx.config())
	return nil
}

func isByteArray(t reflect.Type) bool {
	return t.Kind() == reflect.Array && t.Elem().Kind() == reflect.Uint8
}

func byteArray(v reflect.Value) []byte {
	b := make([]byte, v.Len())
	reflect.Copy(reflect.ValueOf(b), v)
	return b
}

func arrayLen(dt *message.Datatype) int {
	n := 1
	for _, d := range dt.ArrayDims {
		n *= int(d)
	}
	return n
}
