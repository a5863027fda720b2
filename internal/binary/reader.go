// Package binary provides the sized little-endian I/O used by every on-disk
// HDF5 structure: addresses and lengths whose width comes from the superblock.
package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Undefined is the HDF5 "undefined address" sentinel for 8-byte offsets.
const Undefined = ^uint64(0)

// ErrInvalidSize is returned when an offset or length width is not 2, 4 or 8.
var ErrInvalidSize = errors.New("invalid offset/length size: must be 2, 4, or 8")

// Config holds the sizes negotiated by the superblock.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int
	LengthSize int
}

// DefaultConfig is little-endian with 8-byte offsets and lengths.
func DefaultConfig() Config {
	return Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: 8,
		LengthSize: 8,
	}
}

// Validate checks that the sizes are ones HDF5 allows.
func (c Config) Validate() error {
	for _, s := range []int{c.OffsetSize, c.LengthSize} {
		if s != 2 && s != 4 && s != 8 {
			return fmt.Errorf("%w: %d", ErrInvalidSize, s)
		}
	}
	return nil
}

// Reader reads HDF5 fields from an io.ReaderAt. Each Reader has its own
// position; At and WithSizes derive new readers that share the source.
type Reader struct {
	r          io.ReaderAt
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
	pos        int64
}

// NewReader creates a reader positioned at offset 0.
func NewReader(r io.ReaderAt, cfg Config) *Reader {
	if cfg.ByteOrder == nil {
		cfg.ByteOrder = binary.LittleEndian
	}
	return &Reader{
		r:          r,
		order:      cfg.ByteOrder,
		offsetSize: cfg.OffsetSize,
		lengthSize: cfg.LengthSize,
	}
}

// NewBytesReader creates a reader over an in-memory message body.
func NewBytesReader(data []byte, cfg Config) *Reader {
	return NewReader(bytes.NewReader(data), cfg)
}

// At returns a reader positioned at offset.
func (r *Reader) At(offset int64) *Reader {
	c := *r
	c.pos = offset
	return &c
}

// WithSizes returns a reader using different offset and length widths.
func (r *Reader) WithSizes(offsetSize, lengthSize int) *Reader {
	c := *r
	c.offsetSize = offsetSize
	c.lengthSize = lengthSize
	return &c
}

// Config returns the sizes this reader was created with.
func (r *Reader) Config() Config {
	return Config{ByteOrder: r.order, OffsetSize: r.offsetSize, LengthSize: r.lengthSize}
}

func (r *Reader) Pos() int64 { return r.pos }

// Source returns the underlying io.ReaderAt.
func (r *Reader) Source() io.ReaderAt { return r.r }

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read size %d", n)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := r.r.ReadAt(buf, r.pos)
	if got < n {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %d bytes at %d: %w", n, r.pos, err)
	}
	r.pos += int64(n)
	return buf, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	buf, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(buf), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(buf), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(buf), nil
}

// ReadUintN reads an unsigned integer n bytes wide.
func (r *Reader) ReadUintN(n int) (uint64, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return DecodeUint(buf, r.order), nil
}

// ReadOffset reads a file address. An all-ones value is returned as Undefined
// regardless of the configured width.
func (r *Reader) ReadOffset() (uint64, error) {
	v, err := r.ReadUintN(r.offsetSize)
	if err != nil {
		return 0, err
	}
	if r.offsetSize < 8 && v == (uint64(1)<<(8*r.offsetSize))-1 {
		return Undefined, nil
	}
	return v, nil
}

// ReadLength reads a length field.
func (r *Reader) ReadLength() (uint64, error) {
	return r.ReadUintN(r.lengthSize)
}

// ReadCString reads a NUL-terminated string of at most max bytes,
// consuming the terminator.
func (r *Reader) ReadCString(max int) (string, error) {
	var out []byte
	for i := 0; i < max; i++ {
		b, err := r.ReadUint8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
	return "", fmt.Errorf("string at %d exceeds %d bytes", r.pos, max)
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int64) { r.pos += n }

// Align advances the position to the next multiple of alignment.
func (r *Reader) Align(alignment int64) {
	if alignment <= 1 {
		return
	}
	if rem := r.pos % alignment; rem != 0 {
		r.pos += alignment - rem
	}
}

func (r *Reader) OffsetSize() int { return r.offsetSize }

func (r *Reader) LengthSize() int { return r.lengthSize }

func (r *Reader) ByteOrder() binary.ByteOrder { return r.order }

// DecodeUint decodes an unsigned integer of len(buf) bytes.
func DecodeUint(buf []byte, order binary.ByteOrder) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(order.Uint16(buf))
	case 4:
		return uint64(order.Uint32(buf))
	case 8:
		return order.Uint64(buf)
	}
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// IsUndefined reports whether addr is the undefined address.
func IsUndefined(addr uint64) bool { return addr == Undefined }
