package message

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// DatatypeClass is the class of an HDF5 datatype.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

var classNames = [...]string{
	"integer", "float", "time", "string", "bitfield", "opaque",
	"compound", "reference", "enum", "vlen", "array",
}

func (c DatatypeClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// ByteOrder of numeric types.
type ByteOrder uint8

const (
	OrderLE ByteOrder = 0
	OrderBE ByteOrder = 1
)

// StringPadding describes how fixed-length strings are terminated.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

// CharacterSet of string data.
type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Datatype is the datatype message (0x0003). Nested datatypes (compound
// members, enum, vlen and array bases) use the same struct.
type Datatype struct {
	Class     DatatypeClass
	Version   uint8
	ClassBits uint32
	Size      uint32

	// Fixed-point, bitfield, float and time.
	BitOffset    uint16
	BitPrecision uint16

	// Float.
	ExpLocation  uint8
	ExpSize      uint8
	MantLocation uint8
	MantSize     uint8
	ExpBias      uint32

	// Opaque.
	Tag string

	Members []CompoundMember

	EnumNames  []string
	EnumValues [][]byte

	// Base type of enum, vlen and array types.
	Base      *Datatype
	ArrayDims []uint32
}

// CompoundMember is one named field of a compound datatype.
type CompoundMember struct {
	Name       string
	ByteOffset uint32
	Type       *Datatype
}

func (m *Datatype) Type() Type { return TypeDatatype }

// ByteOrder is meaningful for numeric classes only.
func (m *Datatype) ByteOrder() ByteOrder { return ByteOrder(m.ClassBits & 0x01) }

// Signed reports whether a fixed-point type is two's complement.
func (m *Datatype) Signed() bool {
	return m.Class == ClassFixedPoint && m.ClassBits&0x08 != 0
}

// IsVarLenString reports whether this is a variable-length string.
func (m *Datatype) IsVarLenString() bool {
	return m.Class == ClassVarLen && m.ClassBits&0x0f == 1
}

// IsString reports whether values of this type are strings.
func (m *Datatype) IsString() bool {
	return m.Class == ClassString || m.IsVarLenString()
}

// StringPadding returns the padding of a fixed or variable-length string.
func (m *Datatype) StringPadding() StringPadding {
	if m.Class == ClassVarLen {
		return StringPadding(m.ClassBits >> 4 & 0x0f)
	}
	return StringPadding(m.ClassBits & 0x0f)
}

// CharSet returns the character set of a fixed or variable-length string.
func (m *Datatype) CharSet() CharacterSet {
	if m.Class == ClassVarLen {
		return CharacterSet(m.ClassBits >> 8 & 0x0f)
	}
	return CharacterSet(m.ClassBits >> 4 & 0x0f)
}

// Member returns the compound member with the given name.
func (m *Datatype) Member(name string) (CompoundMember, bool) {
	for _, mem := range m.Members {
		if mem.Name == name {
			return mem, true
		}
	}
	return CompoundMember{}, false
}

// Equal reports whether two datatypes describe the same in-file layout.
// Encoding versions are ignored.
func (m *Datatype) Equal(o *Datatype) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Class != o.Class || m.Size != o.Size {
		return false
	}
	switch m.Class {
	case ClassFixedPoint, ClassBitfield, ClassTime:
		return m.ClassBits&0x0f == o.ClassBits&0x0f && m.BitPrecision == o.BitPrecision
	case ClassFloatPoint:
		return m.ByteOrder() == o.ByteOrder() && m.ExpSize == o.ExpSize && m.MantSize == o.MantSize
	case ClassString:
		return m.CharSet() == o.CharSet()
	case ClassOpaque:
		return m.Tag == o.Tag
	case ClassCompound:
		if len(m.Members) != len(o.Members) {
			return false
		}
		for i := range m.Members {
			a, b := m.Members[i], o.Members[i]
			if a.Name != b.Name || a.ByteOffset != b.ByteOffset || !a.Type.Equal(b.Type) {
				return false
			}
		}
		return true
	case ClassEnum:
		if !m.Base.Equal(o.Base) || len(m.EnumNames) != len(o.EnumNames) {
			return false
		}
		for i := range m.EnumNames {
			if m.EnumNames[i] != o.EnumNames[i] || !bytes.Equal(m.EnumValues[i], o.EnumValues[i]) {
				return false
			}
		}
		return true
	case ClassVarLen:
		return m.ClassBits&0x0f == o.ClassBits&0x0f && m.Base.Equal(o.Base)
	case ClassArray:
		if len(m.ArrayDims) != len(o.ArrayDims) {
			return false
		}
		for i := range m.ArrayDims {
			if m.ArrayDims[i] != o.ArrayDims[i] {
				return false
			}
		}
		return m.Base.Equal(o.Base)
	}
	return m.ClassBits == o.ClassBits
}

// String renders a short human-readable description, e.g. "int16" or
// "compound{start uint32, name string(64)}".
func (m *Datatype) String() string {
	switch m.Class {
	case ClassFixedPoint:
		if m.Signed() {
			return fmt.Sprintf("int%d", m.Size*8)
		}
		return fmt.Sprintf("uint%d", m.Size*8)
	case ClassFloatPoint:
		return fmt.Sprintf("float%d", m.Size*8)
	case ClassString:
		return fmt.Sprintf("string(%d)", m.Size)
	case ClassOpaque:
		return fmt.Sprintf("opaque(%d)", m.Size)
	case ClassCompound:
		parts := make([]string, len(m.Members))
		for i, mem := range m.Members {
			parts[i] = mem.Name + " " + mem.Type.String()
		}
		return "compound{" + strings.Join(parts, ", ") + "}"
	case ClassEnum:
		return "enum(" + m.Base.String() + ")"
	case ClassVarLen:
		if m.IsVarLenString() {
			return "vlen string"
		}
		return "vlen(" + m.Base.String() + ")"
	case ClassArray:
		dims := make([]string, len(m.ArrayDims))
		for i, d := range m.ArrayDims {
			dims[i] = fmt.Sprint(d)
		}
		return "[" + strings.Join(dims, "x") + "]" + m.Base.String()
	}
	return fmt.Sprintf("%s(%d)", m.Class, m.Size)
}

func parseDatatypeMessage(r *binary.Reader) (*Datatype, error) {
	return parseDatatype(r)
}

// ParseDatatype decodes a datatype from the start of data.
func ParseDatatype(data []byte, cfg binary.Config) (*Datatype, error) {
	return parseDatatype(binary.NewBytesReader(data, cfg))
}

func parseDatatype(r *binary.Reader) (*Datatype, error) {
	hdr, err := r.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	dt := &Datatype{
		Class:     DatatypeClass(hdr[0] & 0x0f),
		Version:   hdr[0] >> 4,
		ClassBits: uint32(hdr[1]) | uint32(hdr[2])<<8 | uint32(hdr[3])<<16,
		Size:      uint32(hdr[4]) | uint32(hdr[5])<<8 | uint32(hdr[6])<<16 | uint32(hdr[7])<<24,
	}

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		if dt.BitOffset, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		dt.BitPrecision, err = r.ReadUint16()
	case ClassTime:
		dt.BitPrecision, err = r.ReadUint16()
	case ClassFloatPoint:
		err = parseFloat(dt, r)
	case ClassString, ClassReference:
	case ClassOpaque:
		var tag []byte
		if tag, err = r.ReadBytes(int(dt.ClassBits & 0xff)); err == nil {
			dt.Tag = string(bytes.TrimRight(tag, "\x00"))
		}
	case ClassCompound:
		err = parseCompound(dt, r)
	case ClassEnum:
		err = parseEnum(dt, r)
	case ClassVarLen:
		dt.Base, err = parseDatatype(r)
	case ClassArray:
		err = parseArray(dt, r)
	default:
		return nil, fmt.Errorf("%w: datatype class %d", ErrUnsupported, dt.Class)
	}
	if err != nil {
		return nil, fmt.Errorf("%s datatype: %w", dt.Class, err)
	}
	return dt, nil
}

func parseFloat(dt *Datatype, r *binary.Reader) error {
	props, err := r.ReadBytes(12)
	if err != nil {
		return err
	}
	dt.BitOffset = uint16(props[0]) | uint16(props[1])<<8
	dt.BitPrecision = uint16(props[2]) | uint16(props[3])<<8
	dt.ExpLocation = props[4]
	dt.ExpSize = props[5]
	dt.MantLocation = props[6]
	dt.MantSize = props[7]
	dt.ExpBias = uint32(props[8]) | uint32(props[9])<<8 | uint32(props[10])<<16 | uint32(props[11])<<24
	return nil
}

// readName reads a NUL-terminated name, consuming padding to a multiple of
// eight bytes when padded is set.
func readName(r *binary.Reader, padded bool) (string, error) {
	name, err := r.ReadCString(1 << 16)
	if err != nil {
		return "", err
	}
	if padded {
		n := len(name) + 1
		r.Skip(int64(pad8(n) - n))
	}
	return name, nil
}

func parseCompound(dt *Datatype, r *binary.Reader) error {
	n := int(dt.ClassBits & 0xffff)
	dt.Members = make([]CompoundMember, n)
	offsetWidth := minBytes(uint64(dt.Size))
	for i := range dt.Members {
		mem := &dt.Members[i]
		var err error
		if mem.Name, err = readName(r, dt.Version < 3); err != nil {
			return err
		}
		var off uint64
		if dt.Version < 3 {
			off, err = r.ReadUintN(4)
		} else {
			off, err = r.ReadUintN(offsetWidth)
		}
		if err != nil {
			return err
		}
		mem.ByteOffset = uint32(off)

		var dims []uint32
		if dt.Version == 1 {
			raw, err := r.ReadBytes(28)
			if err != nil {
				return err
			}
			rank := int(raw[0])
			for d := 0; d < rank && d < 4; d++ {
				p := raw[12+4*d:]
				dims = append(dims, uint32(p[0])|uint32(p[1])<<8|uint32(p[2])<<16|uint32(p[3])<<24)
			}
		}
		if mem.Type, err = parseDatatype(r); err != nil {
			return fmt.Errorf("member %q: %w", mem.Name, err)
		}
		if len(dims) > 0 {
			mem.Type = NewArray(dims, mem.Type)
		}
	}
	return nil
}

func parseEnum(dt *Datatype, r *binary.Reader) error {
	var err error
	if dt.Base, err = parseDatatype(r); err != nil {
		return err
	}
	n := int(dt.ClassBits & 0xffff)
	dt.EnumNames = make([]string, n)
	for i := range dt.EnumNames {
		if dt.EnumNames[i], err = readName(r, dt.Version < 3); err != nil {
			return err
		}
	}
	dt.EnumValues = make([][]byte, n)
	for i := range dt.EnumValues {
		if dt.EnumValues[i], err = r.ReadBytes(int(dt.Base.Size)); err != nil {
			return err
		}
	}
	return nil
}

func parseArray(dt *Datatype, r *binary.Reader) error {
	rank, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if dt.Version < 3 {
		r.Skip(3)
	}
	dt.ArrayDims = make([]uint32, rank)
	for i := range dt.ArrayDims {
		if dt.ArrayDims[i], err = r.ReadUint32(); err != nil {
			return err
		}
	}
	if dt.Version < 3 {
		r.Skip(4 * int64(rank))
	}
	dt.Base, err = parseDatatype(r)
	return err
}

// Serialize writes the datatype. Compound, enum and array types use
// version 3 encodings; everything else uses version 1.
func (m *Datatype) Serialize(w *binary.Writer) error {
	version := uint8(1)
	switch m.Class {
	case ClassCompound, ClassEnum, ClassArray:
		version = 3
	}
	classBits := m.ClassBits
	switch m.Class {
	case ClassCompound:
		classBits = uint32(len(m.Members))
	case ClassEnum:
		classBits = uint32(len(m.EnumNames))
	case ClassOpaque:
		classBits = uint32(pad8(len(m.Tag) + 1))
		if m.Tag == "" {
			classBits = 0
		}
	}

	w.WriteUint8(uint8(m.Class) | version<<4)
	w.WriteUint8(uint8(classBits))
	w.WriteUint8(uint8(classBits >> 8))
	w.WriteUint8(uint8(classBits >> 16))
	if err := w.WriteUint32(m.Size); err != nil {
		return err
	}

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		w.WriteUint16(m.BitOffset)
		return w.WriteUint16(m.BitPrecision)
	case ClassTime:
		return w.WriteUint16(m.BitPrecision)
	case ClassFloatPoint:
		w.WriteUint16(m.BitOffset)
		w.WriteUint16(m.BitPrecision)
		w.WriteBytes([]byte{m.ExpLocation, m.ExpSize, m.MantLocation, m.MantSize})
		return w.WriteUint32(m.ExpBias)
	case ClassOpaque:
		if classBits > 0 {
			tag := make([]byte, classBits)
			copy(tag, m.Tag)
			return w.WriteBytes(tag)
		}
	case ClassCompound:
		width := minBytes(uint64(m.Size))
		for _, mem := range m.Members {
			w.WriteBytes(append([]byte(mem.Name), 0))
			w.WriteUintN(uint64(mem.ByteOffset), width)
			if err := mem.Type.Serialize(w); err != nil {
				return err
			}
		}
	case ClassEnum:
		if err := m.Base.Serialize(w); err != nil {
			return err
		}
		for _, name := range m.EnumNames {
			w.WriteBytes(append([]byte(name), 0))
		}
		for _, v := range m.EnumValues {
			if err := w.WriteBytes(v); err != nil {
				return err
			}
		}
	case ClassVarLen:
		return m.Base.Serialize(w)
	case ClassArray:
		w.WriteUint8(uint8(len(m.ArrayDims)))
		for _, d := range m.ArrayDims {
			w.WriteUint32(d)
		}
		return m.Base.Serialize(w)
	}
	return nil
}

// NewFixedPoint returns a little-endian integer type of size bytes.
func NewFixedPoint(size uint32, signed bool) *Datatype {
	var bits uint32
	if signed {
		bits |= 0x08
	}
	return &Datatype{
		Class:        ClassFixedPoint,
		Version:      1,
		ClassBits:    bits,
		Size:         size,
		BitPrecision: uint16(size * 8),
	}
}

// NewFloat returns a little-endian IEEE 754 type of 4 or 8 bytes.
func NewFloat(size uint32) *Datatype {
	dt := &Datatype{
		Class:        ClassFloatPoint,
		Version:      1,
		Size:         size,
		BitPrecision: uint16(size * 8),
	}
	// Mantissa normalization "implied" sits in bits 4-5, the sign
	// position in bits 8-15.
	switch size {
	case 4:
		dt.ClassBits = 0x20 | 31<<8
		dt.ExpLocation, dt.ExpSize, dt.MantSize, dt.ExpBias = 23, 8, 23, 127
	case 8:
		dt.ClassBits = 0x20 | 63<<8
		dt.ExpLocation, dt.ExpSize, dt.MantSize, dt.ExpBias = 52, 11, 52, 1023
	}
	return dt
}

// NewString returns a fixed-length string type.
func NewString(size uint32, pad StringPadding, cset CharacterSet) *Datatype {
	return &Datatype{
		Class:     ClassString,
		Version:   1,
		ClassBits: uint32(pad) | uint32(cset)<<4,
		Size:      size,
	}
}

// NewVarLenString returns a variable-length string type for a file whose
// addresses are offsetSize bytes wide.
func NewVarLenString(cset CharacterSet, offsetSize int) *Datatype {
	return &Datatype{
		Class:     ClassVarLen,
		Version:   1,
		ClassBits: 1 | uint32(PadNullTerm)<<4 | uint32(cset)<<8,
		Size:      uint32(4 + offsetSize + 4),
		Base: &Datatype{
			Class:        ClassFixedPoint,
			Version:      1,
			Size:         1,
			BitPrecision: 8,
		},
	}
}

// NewOpaque returns an opaque type of size bytes.
func NewOpaque(size uint32, tag string) *Datatype {
	return &Datatype{Class: ClassOpaque, Version: 1, Size: size, Tag: tag}
}

// NewCompound returns a compound type with the given members.
func NewCompound(size uint32, members []CompoundMember) *Datatype {
	return &Datatype{
		Class:     ClassCompound,
		Version:   3,
		ClassBits: uint32(len(members)),
		Size:      size,
		Members:   members,
	}
}

// NewArray returns a fixed-size array of base.
func NewArray(dims []uint32, base *Datatype) *Datatype {
	n := uint32(1)
	for _, d := range dims {
		n *= d
	}
	return &Datatype{
		Class:     ClassArray,
		Version:   3,
		Size:      n * base.Size,
		ArrayDims: dims,
		Base:      base,
	}
}

// NewEnum returns an enumeration over an integer base type.
func NewEnum(base *Datatype, names []string, values [][]byte) *Datatype {
	return &Datatype{
		Class:      ClassEnum,
		Version:    3,
		ClassBits:  uint32(len(names)),
		Size:       base.Size,
		Base:       base,
		EnumNames:  names,
		EnumValues: values,
	}
}
