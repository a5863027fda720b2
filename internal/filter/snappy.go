package filter

import (
	"github.com/golang/snappy"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// Snappy is the registered snappy filter, block format, no client data.
type Snappy struct{}

func (Snappy) ID() uint16   { return message.FilterSnappy }
func (Snappy) Name() string { return "snappy" }

func (Snappy) Encode(input []byte) ([]byte, error) {
	return snappy.Encode(nil, input), nil
}

func (Snappy) Decode(input []byte) ([]byte, error) {
	return snappy.Decode(nil, input)
}
