// Package filter implements the HDF5 filter pipeline for chunked data.
//
// On write, filters run in pipeline order; on read they are reversed. Each
// stored chunk carries a mask in which bit i set means filter i was skipped
// for that chunk.
//
// Supported filters are deflate (1), shuffle (2), fletcher32 (3) and the
// registered snappy filter (32003). SZIP, N-bit and scale-offset are
// recognized by name only.
package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// ErrUnsupported is returned for a required filter this package cannot run.
var ErrUnsupported = errors.New("unsupported filter")

// Filter transforms one chunk in each direction.
type Filter interface {
	ID() uint16
	Name() string
	Encode(input []byte) ([]byte, error)
	Decode(input []byte) ([]byte, error)
}

type constructor func(clientData []uint32, elemSize int) Filter

var registry = map[uint16]constructor{
	message.FilterDeflate:    func(cd []uint32, _ int) Filter { return NewDeflate(cd) },
	message.FilterShuffle:    func(cd []uint32, es int) Filter { return NewShuffle(cd, es) },
	message.FilterFletcher32: func([]uint32, int) Filter { return Fletcher32{} },
	message.FilterSnappy:     func([]uint32, int) Filter { return Snappy{} },
}

var names = map[uint16]string{
	message.FilterDeflate:     "deflate",
	message.FilterShuffle:     "shuffle",
	message.FilterFletcher32:  "fletcher32",
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
	message.FilterSnappy:      "snappy",
}

// NameOf returns a readable name for a filter id.
func NameOf(id uint16) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("filter%d", id)
}

// New builds the filter described by info. elemSize is the dataset element
// size, used by shuffle when the client data does not carry it. A nil filter
// with a nil error means an optional filter this package cannot run.
func New(info message.FilterInfo, elemSize int) (Filter, error) {
	c, ok := registry[info.ID]
	if !ok {
		if info.Optional() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s (id %d)", ErrUnsupported, NameOf(info.ID), info.ID)
	}
	return c(info.ClientData, elemSize), nil
}

// Info returns the pipeline entry this package writes for filter id.
func Info(id uint16, clientData ...uint32) message.FilterInfo {
	fi := message.FilterInfo{ID: id, ClientData: clientData}
	if id == message.FilterSnappy {
		fi.Name = "snappy"
		fi.Flags = message.FilterOptional
	}
	return fi
}
