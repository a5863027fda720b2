// Package heap implements the two HDF5 heaps this module needs: local
// heaps, which hold member names of old-style groups, and global heap
// collections, which hold variable-length data such as vlen strings.
package heap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

var ErrInvalidHeap = errors.New("invalid heap")

// Local is a local heap: a header plus a contiguous data segment.
type Local struct {
	Address     uint64
	DataAddress uint64
	data        []byte
}

// ReadLocal reads the local heap at address.
func ReadLocal(r *binary.Reader, address uint64) (*Local, error) {
	hr := r.At(int64(address))
	hdr, err := hr.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	if string(hdr[:4]) != "HEAP" || hdr[4] != 0 {
		return nil, fmt.Errorf("%w: local heap at %d", ErrInvalidHeap, address)
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	hr.Skip(int64(hr.LengthSize())) // free list head
	dataAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	data, err := r.At(int64(dataAddr)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("local heap data: %w", err)
	}
	return &Local{Address: address, DataAddress: dataAddr, data: data}, nil
}

// String returns the NUL-terminated string at offset.
func (h *Local) String(offset uint64) (string, error) {
	if offset >= uint64(len(h.data)) {
		return "", fmt.Errorf("%w: offset %d outside %d byte local heap", ErrInvalidHeap, offset, len(h.data))
	}
	b := h.data[offset:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}
