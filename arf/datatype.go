package arf

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-arf/hdf5"
)

// DataType is the code stored in a dataset's datatype attribute. Codes
// below 1000 are sampled data, codes from 1000 are event times, and codes
// from 2000 are interval data.
type DataType int32

const (
	TypeUndefined  DataType = 0
	TypeAcoustic   DataType = 1
	TypeExtracHP   DataType = 2
	TypeExtracLF   DataType = 3
	TypeExtracEEG  DataType = 4
	TypeIntracCC   DataType = 5
	TypeIntracVC   DataType = 7
	TypeEvent      DataType = 1000
	TypeSpikeT     DataType = 1001
	TypeBehavET    DataType = 1002
	TypeInterval   DataType = 2000
	TypeStimI      DataType = 2001
	TypeComponentL DataType = 2002
)

var dataTypeNames = map[DataType]string{
	TypeUndefined:  "UNDEFINED",
	TypeAcoustic:   "ACOUSTIC",
	TypeExtracHP:   "EXTRAC_HP",
	TypeExtracLF:   "EXTRAC_LF",
	TypeExtracEEG:  "EXTRAC_EEG",
	TypeIntracCC:   "INTRAC_CC",
	TypeIntracVC:   "INTRAC_VC",
	TypeEvent:      "EVENT",
	TypeSpikeT:     "SPIKET",
	TypeBehavET:    "BEHAVET",
	TypeInterval:   "INTERVAL",
	TypeStimI:      "STIMI",
	TypeComponentL: "COMPONENTL",
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int32(t))
}

// Sampled reports whether t is a sampled data code.
func (t DataType) Sampled() bool { return t < TypeEvent }

// ParseDataType returns the code named s, ignoring case.
func ParseDataType(s string) (DataType, error) {
	for t, name := range dataTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return TypeUndefined, fmt.Errorf("%w: unknown data type %q", hdf5.ErrInvalidArgument, s)
}

// Interval is the record type of interval datasets: a labelled span
// between two sample times.
type Interval struct {
	Name  [64]byte `hdf5:"name"`
	Start uint32   `hdf5:"start"`
	Stop  uint32   `hdf5:"stop"`
}

// NewInterval returns an interval; names longer than 63 bytes are cut.
func NewInterval(name string, start, stop uint32) Interval {
	iv := Interval{Start: start, Stop: stop}
	copy(iv.Name[:len(iv.Name)-1], name)
	return iv
}

// IntervalName returns the name up to its first null byte.
func (iv Interval) IntervalName() string {
	b := iv.Name[:]
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// LogMessage is a record of the file log.
type LogMessage struct {
	Sec  int64  `hdf5:"sec"`
	Usec int64  `hdf5:"usec"`
	Msg  string `hdf5:"msg"`
}
