package arf

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/robert-malhotra/go-arf/hdf5"
)

// Timestamp is an entry time as seconds and microseconds since the epoch.
type Timestamp struct {
	Sec  int64
	Usec int64
}

// Now returns the current time as a Timestamp.
func Now() Timestamp { return FromTime(time.Now()) }

// FromTime converts t, dropping anything below a microsecond.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Usec: int64(t.Nanosecond() / 1000)}
}

// ConvertTimestamp makes a Timestamp from a time.Time, a Timestamp, an
// integer count of seconds, a floating point count of seconds, or a slice
// or array whose first two numbers are seconds and microseconds.
func ConvertTimestamp(v any) (Timestamp, error) {
	switch v := v.(type) {
	case Timestamp:
		return v, nil
	case *Timestamp:
		if v != nil {
			return *v, nil
		}
	case time.Time:
		return FromTime(v), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Timestamp{Sec: rv.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			break
		}
		return Timestamp{Sec: int64(rv.Uint())}, nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
			break
		}
		sec := int64(f)
		return Timestamp{Sec: sec, Usec: int64((f - float64(sec)) * 1e6)}, nil
	case reflect.Slice, reflect.Array:
		if rv.Len() < 2 {
			break
		}
		var out [2]int64
		for i := range out {
			e := rv.Index(i)
			switch e.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				out[i] = e.Int()
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				out[i] = int64(e.Uint())
			case reflect.Float32, reflect.Float64:
				out[i] = int64(e.Float())
			default:
				return Timestamp{}, fmt.Errorf("%w: timestamp element of type %v", hdf5.ErrInvalidArgument, e.Type())
			}
		}
		return Timestamp{Sec: out[0], Usec: out[1]}, nil
	}
	return Timestamp{}, fmt.Errorf("%w: unable to convert %v (%T) to a timestamp", hdf5.ErrInvalidArgument, v, v)
}

// Time returns the timestamp as a time.Time in local time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Sec, t.Usec*1000)
}

// Float returns the timestamp in seconds.
func (t Timestamp) Float() float64 {
	return float64(t.Sec) + float64(t.Usec)*1e-6
}

func (t Timestamp) String() string {
	return t.Time().UTC().Format("2006-01-02T15:04:05.000000Z")
}

func (t Timestamp) attr() [2]int64 { return [2]int64{t.Sec, t.Usec} }
