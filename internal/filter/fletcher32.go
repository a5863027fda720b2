package filter

import (
	"encoding/binary"
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// ErrChecksum is returned when a chunk fails fletcher32 verification.
var ErrChecksum = errors.New("fletcher32 checksum mismatch")

// Fletcher32 appends a 4-byte checksum on write and verifies it on read.
type Fletcher32 struct{}

func (Fletcher32) ID() uint16   { return message.FilterFletcher32 }
func (Fletcher32) Name() string { return "fletcher32" }

func (Fletcher32) Encode(input []byte) ([]byte, error) {
	out := make([]byte, len(input), len(input)+4)
	copy(out, input)
	return binary.LittleEndian.AppendUint32(out, binpkg.Fletcher32(input)), nil
}

// Decode also accepts the checksum with the bytes of each half swapped, as
// written by old library versions.
func (Fletcher32) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("fletcher32: %d byte chunk has no checksum", len(input))
	}
	data := input[:len(input)-4]
	stored := binary.LittleEndian.Uint32(input[len(input)-4:])
	sum := binpkg.Fletcher32(data)
	if stored != sum && stored != swapHalves(sum) {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, stored, sum)
	}
	return data, nil
}

func swapHalves(x uint32) uint32 {
	return (x&0x00ff00ff)<<8 | (x>>8)&0x00ff00ff
}
