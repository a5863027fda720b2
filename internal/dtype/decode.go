package dtype

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/robert-malhotra/go-arf/internal/heap"
	"github.com/robert-malhotra/go-arf/internal/message"
)

type decodeFunc func(b []byte, v reflect.Value, ctx *Context) error

// Decode converts len(data)/dt.Size elements into dest, which must be a
// settable slice or array with room for them.
func Decode(dt *message.Datatype, data []byte, dest reflect.Value, ctx *Context) error {
	size := int(dt.Size)
	if size == 0 {
		return fmt.Errorf("%w: zero-size datatype", ErrUnsupported)
	}
	n := len(data) / size
	if dest.Len() < n {
		return fmt.Errorf("decode %d elements into %d", n, dest.Len())
	}
	elem := dest.Type().Elem()
	if dest.Kind() == reflect.Slice && fastPath(dt, elem) {
		_, err := binary.Decode(data[:n*size], binary.LittleEndian, dest.Slice(0, n).Interface())
		return err
	}
	dec, err := newDecoder(dt, elem)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := dec(data[i*size:(i+1)*size], dest.Index(i), ctx); err != nil {
			return err
		}
	}
	return nil
}

// Check reports whether values of dt can be read into Go type t.
func Check(dt *message.Datatype, t reflect.Type) error {
	_, err := newDecoder(dt, t)
	return err
}

func newDecoder(dt *message.Datatype, t reflect.Type) (decodeFunc, error) {
	switch {
	case isNumericKind(t.Kind()):
		if IsNumeric(dt) || dt.Class == message.ClassEnum {
			if err := checkNumeric(dt); err != nil {
				return nil, err
			}
			return func(b []byte, v reflect.Value, _ *Context) error {
				setNumber(v, loadNumber(dt, b))
				return nil
			}, nil
		}
	case t.Kind() == reflect.String:
		if dt.IsString() {
			return func(b []byte, v reflect.Value, ctx *Context) error {
				s, err := loadString(dt, b, ctx)
				if err != nil {
					return err
				}
				v.SetString(string(s))
				return nil
			}, nil
		}
	case t == uuidType && dt.IsString():
		return func(b []byte, v reflect.Value, ctx *Context) error {
			s, err := loadString(dt, b, ctx)
			if err != nil {
				return err
			}
			id, err := uuid.ParseBytes(s)
			if err != nil {
				return fmt.Errorf("%w: %q is not a uuid", ErrTypeMismatch, s)
			}
			v.Set(reflect.ValueOf(id))
			return nil
		}, nil
	case isByteArray(t):
		if (dt.Class == message.ClassOpaque && int(dt.Size) == t.Len()) || dt.IsString() {
			return func(b []byte, v reflect.Value, ctx *Context) error {
				if dt.Class != message.ClassOpaque {
					s, err := loadString(dt, b, ctx)
					if err != nil {
						return err
					}
					b = s
				}
				v.SetZero()
				reflect.Copy(v, reflect.ValueOf(b))
				return nil
			}, nil
		}
	case t.Kind() == reflect.Array:
		if dt.Class == message.ClassArray && arrayLen(dt) == t.Len() {
			base, err := newDecoder(dt.Base, t.Elem())
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
			return structDecoder(dt, t)
		}
	}
	return nil, mismatch(dt, t)
}

// structDecoder fills every struct field from the member of the same name.
// Members without a field are ignored.
func structDecoder(dt *message.Datatype, t reflect.Type) (decodeFunc, error) {
	type part struct {
		index  int
		offset int
		size   int
		dec    decodeFunc
	}
	var parts []part
	for _, f := range fields(t) {
		m, ok := dt.Member(f.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no member %q", ErrTypeMismatch, dt, f.name)
		}
		dec, err := newDecoder(m.Type, t.Field(f.index).Type)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", f.name, err)
		}
		parts = append(parts, part{index: f.index, offset: int(m.ByteOffset), size: int(m.Type.Size), dec: dec})
	}
	return func(b []byte, v reflect.Value, ctx *Context) error {
		for _, p := range parts {
			if p.offset+p.size > len(b) {
				return fmt.Errorf("%w: member at %d overruns %d byte record", ErrUnsupported, p.offset, len(b))
			}
			if err := p.dec(b[p.offset:p.offset+p.size], v.Field(p.index), ctx); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// loadString returns the bytes of a fixed or variable-length string element
// with padding removed.
func loadString(dt *message.Datatype, b []byte, ctx *Context) ([]byte, error) {
	if dt.Class == message.ClassString {
		if dt.StringPadding() == message.PadSpacePad {
			return bytes.TrimRight(b, " "), nil
		}
		return trimNul(b), nil
	}
	n, id := heap.DecodeVLen(b, ctx.config())
	if n == 0 || id.IsNull() {
		return nil, nil
	}
	if ctx == nil || ctx.Heap == nil {
		return nil, fmt.Errorf("%w: variable-length data needs a heap", ErrUnsupported)
	}
	data, err := ctx.Heap.Read(id)
	if err != nil {
		return nil, err
	}
	if int(n) < len(data) {
		data = data[:n]
	}
	return trimNul(data), nil
}

func trimNul(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}
