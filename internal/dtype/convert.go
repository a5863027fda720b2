package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// number is a numeric value in transit between an HDF5 encoding and a Go
// value. Exactly one of i, u, f is meaningful, selected by kind.
type number struct {
	kind numKind
	i    int64
	u    uint64
	f    float64
}

type numKind uint8

const (
	numInt numKind = iota
	numUint
	numFloat
)

func byteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder() == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func checkNumeric(dt *message.Datatype) error {
	switch dt.Class {
	case message.ClassFixedPoint:
		if dt.BitOffset == 0 && (dt.Size == 1 || dt.Size == 2 || dt.Size == 4 || dt.Size == 8) {
			return nil
		}
	case message.ClassFloatPoint:
		if dt.Size == 4 || dt.Size == 8 {
			return nil
		}
	case message.ClassEnum:
		return checkNumeric(dt.Base)
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, dt)
}

// loadNumber decodes one element of a numeric or enum type.
func loadNumber(dt *message.Datatype, b []byte) number {
	if dt.Class == message.ClassEnum {
		return loadNumber(dt.Base, b)
	}
	order := byteOrder(dt)
	if dt.Class == message.ClassFloatPoint {
		if dt.Size == 4 {
			return number{kind: numFloat, f: float64(math.Float32frombits(order.Uint32(b)))}
		}
		return number{kind: numFloat, f: math.Float64frombits(order.Uint64(b))}
	}
	var u uint64
	switch dt.Size {
	case 1:
		u = uint64(b[0])
	case 2:
		u = uint64(order.Uint16(b))
	case 4:
		u = uint64(order.Uint32(b))
	case 8:
		u = order.Uint64(b)
	}
	if !dt.Signed() {
		return number{kind: numUint, u: u}
	}
	shift := 64 - 8*dt.Size
	return number{kind: numInt, i: int64(u<<shift) >> shift}
}

// storeNumber encodes n as one element of dt, clamping to its range.
func storeNumber(dt *message.Datatype, b []byte, n number) {
	if dt.Class == message.ClassEnum {
		storeNumber(dt.Base, b, n)
		return
	}
	order := byteOrder(dt)
	if dt.Class == message.ClassFloatPoint {
		f := n.float()
		if dt.Size == 4 {
			order.PutUint32(b, math.Float32bits(float32(f)))
		} else {
			order.PutUint64(b, math.Float64bits(f))
		}
		return
	}
	bitsN := 8 * dt.Size
	var u uint64
	if dt.Signed() {
		u = uint64(n.clampInt(bitsN))
	} else {
		u = n.clampUint(bitsN)
	}
	switch dt.Size {
	case 1:
		b[0] = uint8(u)
	case 2:
		order.PutUint16(b, uint16(u))
	case 4:
		order.PutUint32(b, uint32(u))
	case 8:
		order.PutUint64(b, u)
	}
}

func (n number) float() float64 {
	switch n.kind {
	case numInt:
		return float64(n.i)
	case numUint:
		return float64(n.u)
	}
	return n.f
}

// clampInt returns n as a signed integer of the given width, saturating.
func (n number) clampInt(width uint32) int64 {
	hi := int64(1)<<(width-1) - 1
	lo := -hi - 1
	switch n.kind {
	case numInt:
		return min(max(n.i, lo), hi)
	case numUint:
		if n.u > uint64(hi) {
			return hi
		}
		return int64(n.u)
	}
	switch {
	case math.IsNaN(n.f):
		return 0
	case n.f >= float64(hi):
		return hi
	case n.f <= float64(lo):
		return lo
	}
	return int64(n.f)
}

// clampUint returns n as an unsigned integer of the given width, saturating.
func (n number) clampUint(width uint32) uint64 {
	hi := ^uint64(0) >> (64 - width)
	switch n.kind {
	case numInt:
		if n.i < 0 {
			return 0
		}
		return min(uint64(n.i), hi)
	case numUint:
		return min(n.u, hi)
	}
	switch {
	case math.IsNaN(n.f) || n.f <= 0:
		return 0
	case n.f >= float64(hi):
		return hi
	}
	return uint64(n.f)
}

// getNumber reads a Go numeric value.
func getNumber(v reflect.Value) number {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: numInt, i: v.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return number{kind: numUint, u: v.Uint()}
	}
	return number{kind: numFloat, f: v.Float()}
}

// setNumber stores n into a Go numeric value, clamping to its range.
func setNumber(v reflect.Value, n number) {
	width := uint32(v.Type().Size() * 8)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(n.clampInt(width))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(n.clampUint(width))
	default:
		v.SetFloat(n.float())
	}
}
