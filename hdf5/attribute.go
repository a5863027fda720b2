package hdf5

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/robert-malhotra/go-arf/internal/dtype"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// Attribute is a snapshot of an attribute attached to a group or dataset.
type Attribute struct {
	msg *message.Attribute
	f   *File
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the attribute value; nil for scalars.
func (a *Attribute) Shape() []uint64 {
	if a.msg.Dataspace == nil || a.msg.Dataspace.SpaceType != message.DataspaceSimple {
		return nil
	}
	return clone(a.msg.Dataspace.Dimensions)
}

// NumElements returns the total number of elements.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// IsScalar returns true if the attribute is a scalar value.
func (a *Attribute) IsScalar() bool {
	return a.msg.Dataspace == nil || a.msg.Dataspace.SpaceType == message.DataspaceScalar
}

// Datatype returns the stored type.
func (a *Attribute) Datatype() *Datatype {
	return &Datatype{m: a.msg.Datatype}
}

// Read converts the value into dest, which must be a pointer. A pointer to
// a slice receives every element; a pointer to anything else requires a
// single element, except for arrays, which take one element per entry.
func (a *Attribute) Read(dest any) error {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	return wrap("read attribute", a.msg.Name, decodeAttr(a.msg, dest, a.f.ctx()))
}

// Value returns the attribute in its natural Go type: a single value for
// scalars and a slice otherwise. Compound values are returned as structs
// whose fields are tagged with the member names.
func (a *Attribute) Value() (any, error) {
	var v any
	if err := a.Read(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeAttr(msg *message.Attribute, dest any, ctx *dtype.Context) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer, got %T", ErrInvalidArgument, dest)
	}
	dt := msg.Datatype
	scalar := msg.Dataspace == nil || msg.Dataspace.SpaceType == message.DataspaceScalar
	n := 1
	if msg.Dataspace != nil {
		n = int(msg.Dataspace.NumElements())
	}
	size := int(dt.Size)
	if len(msg.Data) < n*size {
		return fmt.Errorf("%w: attribute data holds %d bytes, want %d", ErrInvalidArgument, len(msg.Data), n*size)
	}
	data := msg.Data[:n*size]

	v := rv.Elem()
	switch {
	case v.Kind() == reflect.Interface && v.Type().NumMethod() == 0:
		t, err := dtype.GoType(dt)
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(reflect.SliceOf(t), n, n)
		if err := dtype.Decode(dt, data, out, ctx); err != nil {
			return err
		}
		if scalar && n == 1 {
			v.Set(out.Index(0))
		} else {
			v.Set(out)
		}
		return nil
	case v.Kind() == reflect.Slice:
		out := reflect.MakeSlice(v.Type(), n, n)
		if err := dtype.Decode(dt, data, out, ctx); err != nil {
			return err
		}
		v.Set(out)
		return nil
	case v.Kind() == reflect.Array && !(n == 1 && dtype.Check(dt, v.Type()) == nil):
		if v.Len() != n {
			return fmt.Errorf("%w: %d elements into %v", ErrTypeMismatch, n, v.Type())
		}
		return dtype.Decode(dt, data, v, ctx)
	}
	if n != 1 {
		return fmt.Errorf("%w: %d elements into a single %v", ErrTypeMismatch, n, v.Type())
	}
	one := reflect.New(reflect.ArrayOf(1, v.Type())).Elem()
	if err := dtype.Decode(dt, data, one, ctx); err != nil {
		return err
	}
	v.Set(one.Index(0))
	return nil
}

var uuidType = reflect.TypeOf(uuid.UUID{})

// attrMessage encodes value as an attribute message. Strings are stored as
// null-terminated fixed-length ASCII, string slices with the longest
// element's length, slices and non-byte arrays as one-dimensional vectors,
// and everything else as scalars.
func attrMessage(name string, value any, f *File) (*message.Attribute, error) {
	v := reflect.ValueOf(value)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: nil attribute value", ErrInvalidArgument)
	}
	t := v.Type()

	var dt *message.Datatype
	space := message.NewScalarDataspace()
	elems := reflect.New(reflect.ArrayOf(1, t)).Elem()
	elems.Index(0).Set(v)

	switch {
	case t == uuidType:
		dt = message.NewOpaque(16, "uuid")
	case t.Kind() == reflect.String:
		if err := checkNul(v.String()); err != nil {
			return nil, err
		}
		dt = message.NewString(uint32(v.Len()+1), message.PadNullTerm, message.CharsetASCII)
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
		longest := 0
		for i := 0; i < v.Len(); i++ {
			if err := checkNul(v.Index(i).String()); err != nil {
				return nil, err
			}
			longest = max(longest, v.Index(i).Len())
		}
		dt = message.NewString(uint32(longest+1), message.PadNullTerm, message.CharsetASCII)
		space = message.NewSimpleDataspace([]uint64{uint64(v.Len())}, nil)
		elems = v
	case t.Kind() == reflect.Slice || (t.Kind() == reflect.Array && t.Elem().Kind() != reflect.Uint8):
		if !storable(t.Elem()) {
			return nil, fmt.Errorf("%w: attribute of %v", ErrInvalidArgument, t)
		}
		var err error
		if dt, err = dtype.FromGo(t.Elem(), f.cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		space = message.NewSimpleDataspace([]uint64{uint64(v.Len())}, nil)
		elems = v
	case storable(t):
		var err error
		if dt, err = dtype.FromGo(t, f.cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	default:
		return nil, fmt.Errorf("%w: attribute of %v", ErrInvalidArgument, t)
	}

	data, err := dtype.Encode(dt, elems, f.ctx())
	if err != nil {
		return nil, err
	}
	return message.NewAttribute(name, dt, space, data), nil
}

// checkNul rejects strings that would be cut short by null-terminated
// storage.
func checkNul(s string) error {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return fmt.Errorf("%w: string attribute has a NUL at byte %d", ErrInvalidArgument, i)
	}
	return nil
}

// storable reports whether values of t can be stored as attribute elements.
func storable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Complex64, reflect.Complex128, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Pointer, reflect.UnsafePointer, reflect.Slice:
		return false
	}
	return true
}

// maxAttrSize bounds an attribute message kept in the object header.
const maxAttrSize = 0xffff

func setAttr(st *objState, name string, value any) error {
	if err := st.writable(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty attribute name", ErrInvalidArgument)
	}
	if ai := st.hdr.AttributeInfo(); ai != nil && ai.Dense() {
		return fmt.Errorf("%w: dense attribute storage", ErrUnsupported)
	}
	msg, err := attrMessage(name, value, st.f)
	if err != nil {
		return err
	}
	if enc, err := message.Encode(msg, st.f.cfg); err != nil {
		return err
	} else if len(enc) > maxAttrSize {
		return fmt.Errorf("%w: attribute %s needs %d bytes", ErrInvalidArgument, name, len(enc))
	}
	st.dirty = true
	for i, m := range st.hdr.Messages {
		if a, ok := m.(*message.Attribute); ok && a.Name == name {
			st.hdr.Messages[i] = msg
			return nil
		}
	}
	st.hdr.Messages = append(st.hdr.Messages, msg)
	return nil
}

// SetAttr creates or overwrites the attribute called name. Supported
// values are numbers, strings, uuid.UUID, flat structs, and slices or
// arrays of those. Strings are stored null-terminated, so a string
// containing a NUL byte is rejected with ErrInvalidArgument.
func (n *Node) SetAttr(name string, value any) error {
	st, err := n.acquire()
	if err != nil {
		return wrap("set attribute", JoinAttrPath(n.path, name), err)
	}
	defer n.release()
	return wrap("set attribute", JoinAttrPath(n.path, name), setAttr(st, name, value))
}

// Attr returns the attribute called name.
func (n *Node) Attr(name string) (*Attribute, error) {
	st, err := n.acquire()
	if err != nil {
		return nil, wrap("attribute", JoinAttrPath(n.path, name), err)
	}
	defer n.release()
	a := st.hdr.Attribute(name)
	if a == nil {
		return nil, wrap("attribute", JoinAttrPath(n.path, name), ErrNotFound)
	}
	return &Attribute{msg: a, f: st.f}, nil
}

// ReadAttr reads the attribute called name into dest; see Attribute.Read.
// Numbers convert between widths; strings read from fixed or
// variable-length storage.
func (n *Node) ReadAttr(name string, dest any) error {
	st, err := n.acquire()
	if err != nil {
		return wrap("read attribute", JoinAttrPath(n.path, name), err)
	}
	defer n.release()
	a := st.hdr.Attribute(name)
	if a == nil {
		return wrap("read attribute", JoinAttrPath(n.path, name), ErrNotFound)
	}
	return wrap("read attribute", JoinAttrPath(n.path, name), decodeAttr(a, dest, st.f.ctx()))
}

// HasAttr reports whether the attribute exists.
func (n *Node) HasAttr(name string) bool {
	st, err := n.acquire()
	if err != nil {
		return false
	}
	defer n.release()
	return st.hdr.Attribute(name) != nil
}

// DeleteAttr removes the attribute called name.
func (n *Node) DeleteAttr(name string) error {
	st, err := n.acquire()
	if err != nil {
		return wrap("delete attribute", JoinAttrPath(n.path, name), err)
	}
	defer n.release()
	if err := st.writable(); err != nil {
		return wrap("delete attribute", JoinAttrPath(n.path, name), err)
	}
	removed := st.hdr.Remove(func(m message.Message) bool {
		a, ok := m.(*message.Attribute)
		return ok && a.Name == name
	})
	if removed == 0 {
		return wrap("delete attribute", JoinAttrPath(n.path, name), ErrNotFound)
	}
	st.dirty = true
	return nil
}

// Attrs returns the attribute names in storage order.
func (n *Node) Attrs() ([]string, error) {
	st, err := n.acquire()
	if err != nil {
		return nil, wrap("attributes", n.path, err)
	}
	defer n.release()
	if ai := st.hdr.AttributeInfo(); ai != nil && ai.Dense() {
		return nil, wrap("attributes", n.path, fmt.Errorf("%w: dense attribute storage", ErrUnsupported))
	}
	var names []string
	for _, a := range st.hdr.Attributes() {
		names = append(names, a.Name)
	}
	return names, nil
}

// AttrString reads a string attribute.
func (n *Node) AttrString(name string) (string, error) {
	var s string
	err := n.ReadAttr(name, &s)
	return s, err
}

// AttrInt reads a single-valued numeric attribute as an int64.
func (n *Node) AttrInt(name string) (int64, error) {
	var v int64
	err := n.ReadAttr(name, &v)
	return v, err
}

// AttrFloat reads a single-valued numeric attribute as a float64.
func (n *Node) AttrFloat(name string) (float64, error) {
	var v float64
	err := n.ReadAttr(name, &v)
	return v, err
}

func (n *Node) AttrInts(name string) ([]int64, error) {
	var v []int64
	err := n.ReadAttr(name, &v)
	return v, err
}

func (n *Node) AttrFloats(name string) ([]float64, error) {
	var v []float64
	err := n.ReadAttr(name, &v)
	return v, err
}

func (n *Node) AttrStrings(name string) ([]string, error) {
	var v []string
	err := n.ReadAttr(name, &v)
	return v, err
}

// AttrWriter sets several attributes in a row, keeping the first error.
// Writes before a failure stay in place.
type AttrWriter struct {
	n   *Node
	err error
}

// AttrWriter returns a writer for the node's attributes.
func (n *Node) AttrWriter() *AttrWriter {
	return &AttrWriter{n: n}
}

// Set writes one attribute unless an earlier Set failed.
func (w *AttrWriter) Set(name string, value any) *AttrWriter {
	if w.err == nil {
		w.err = w.n.SetAttr(name, value)
	}
	return w
}

// Err returns the first error encountered.
func (w *AttrWriter) Err() error { return w.err }
