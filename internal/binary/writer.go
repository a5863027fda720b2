package binary

import (
	"encoding/binary"
	"io"
)

// Writer writes HDF5 fields to an io.WriterAt. Like Reader, each Writer
// tracks its own position.
type Writer struct {
	w          io.WriterAt
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
	pos        int64
}

// NewWriter creates a writer positioned at offset 0.
func NewWriter(w io.WriterAt, cfg Config) *Writer {
	if cfg.ByteOrder == nil {
		cfg.ByteOrder = binary.LittleEndian
	}
	return &Writer{
		w:          w,
		order:      cfg.ByteOrder,
		offsetSize: cfg.OffsetSize,
		lengthSize: cfg.LengthSize,
	}
}

// NewBufferWriter returns a writer that appends into an in-memory Buffer.
// Message and header serialization goes through it before hitting the file.
func NewBufferWriter(cfg Config) (*Writer, *Buffer) {
	buf := &Buffer{}
	return NewWriter(buf, cfg), buf
}

// At returns a writer positioned at offset.
func (w *Writer) At(offset int64) *Writer {
	c := *w
	c.pos = offset
	return &c
}

// Config returns the sizes this writer was created with.
func (w *Writer) Config() Config {
	return Config{ByteOrder: w.order, OffsetSize: w.offsetSize, LengthSize: w.lengthSize}
}

func (w *Writer) Pos() int64 { return w.pos }

// WriteBytes writes data at the current position.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

func (w *Writer) WriteUint8(v uint8) error {
	return w.WriteBytes([]byte{v})
}

func (w *Writer) WriteUint16(v uint16) error {
	var buf [2]byte
	w.order.PutUint16(buf[:], v)
	return w.WriteBytes(buf[:])
}

func (w *Writer) WriteUint32(v uint32) error {
	var buf [4]byte
	w.order.PutUint32(buf[:], v)
	return w.WriteBytes(buf[:])
}

func (w *Writer) WriteUint64(v uint64) error {
	var buf [8]byte
	w.order.PutUint64(buf[:], v)
	return w.WriteBytes(buf[:])
}

// WriteUintN writes the low n bytes of v.
func (w *Writer) WriteUintN(v uint64, n int) error {
	buf := make([]byte, n)
	EncodeUint(buf, v, w.order)
	return w.WriteBytes(buf)
}

// WriteOffset writes a file address using the configured width.
func (w *Writer) WriteOffset(v uint64) error {
	return w.WriteUintN(v, w.offsetSize)
}

// WriteLength writes a length using the configured width.
func (w *Writer) WriteLength(v uint64) error {
	return w.WriteUintN(v, w.lengthSize)
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	if n <= 0 {
		return nil
	}
	return w.WriteBytes(make([]byte, n))
}

// Skip advances the position without writing.
func (w *Writer) Skip(n int64) { w.pos += n }

func (w *Writer) OffsetSize() int { return w.offsetSize }

func (w *Writer) LengthSize() int { return w.lengthSize }

func (w *Writer) ByteOrder() binary.ByteOrder { return w.order }

// EncodeUint stores the low len(buf) bytes of v.
func EncodeUint(buf []byte, v uint64, order binary.ByteOrder) {
	switch len(buf) {
	case 1:
		buf[0] = uint8(v)
	case 2:
		order.PutUint16(buf, uint16(v))
	case 4:
		order.PutUint32(buf, uint32(v))
	case 8:
		order.PutUint64(buf, v)
	default:
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
	}
}

// Buffer is a growable in-memory io.WriterAt.
type Buffer struct {
	buf []byte
}

// WriteAt writes p at off, growing the buffer as needed.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

// Bytes returns the written contents.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int { return len(b.buf) }

// ReadAt implements io.ReaderAt over the written contents.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
