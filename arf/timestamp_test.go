package arf

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/robert-malhotra/go-arf/hdf5"
)

func TestConvertTimestamp(t *testing.T) {
	when := time.Unix(1700000000, 123456789)
	tests := []struct {
		in   any
		want Timestamp
	}{
		{when, Timestamp{1700000000, 123456}},
		{Timestamp{5, 6}, Timestamp{5, 6}},
		{int64(1700000000), Timestamp{1700000000, 0}},
		{42, Timestamp{42, 0}},
		{uint32(7), Timestamp{7, 0}},
		{1.5, Timestamp{1, 500000}},
		{1700000000.25, Timestamp{1700000000, 250000}},
		{[2]int64{10, 20}, Timestamp{10, 20}},
		{[]int32{10, 20, 30}, Timestamp{10, 20}},
		{[]float64{3, 4}, Timestamp{3, 4}},
	}
	for _, tt := range tests {
		got, err := ConvertTimestamp(tt.in)
		if err != nil {
			t.Errorf("ConvertTimestamp(%v): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ConvertTimestamp(%v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []any{"now", []int64{1}, math.NaN(), math.Inf(1), nil, []string{"a", "b"}} {
		if _, err := ConvertTimestamp(bad); !errors.Is(err, hdf5.ErrInvalidArgument) {
			t.Errorf("ConvertTimestamp(%v): got %v, want ErrInvalidArgument", bad, err)
		}
	}
}

func TestTimestampConversions(t *testing.T) {
	ts := Timestamp{Sec: 1700000000, Usec: 500000}
	if ts.Float() != 1700000000.5 {
		t.Errorf("Float() = %v", ts.Float())
	}
	if !ts.Time().Equal(time.Unix(1700000000, 500000000)) {
		t.Errorf("Time() = %v", ts.Time())
	}
	if ts.String() != "2023-11-14T22:13:20.500000Z" {
		t.Errorf("String() = %q", ts.String())
	}
	if FromTime(ts.Time()) != ts {
		t.Error("FromTime does not invert Time")
	}
}
