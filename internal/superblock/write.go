package superblock

import (
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
)

// Size returns the encoded size of a version 2/3 superblock.
func (sb *Superblock) Size() int {
	return len(Signature) + 4 + 4*int(sb.OffsetSize) + 4
}

// Encode serializes a version 2 superblock including its checksum.
func (sb *Superblock) Encode() ([]byte, error) {
	if !sb.Writable() {
		return nil, fmt.Errorf("%w: cannot write version %d", ErrUnsupportedVersion, sb.Version)
	}
	w, buf := binpkg.NewBufferWriter(sb.Config())
	w.WriteBytes(Signature)
	w.WriteUint8(sb.Version)
	w.WriteUint8(sb.OffsetSize)
	w.WriteUint8(sb.LengthSize)
	w.WriteUint8(sb.Flags)
	w.WriteOffset(sb.BaseAddress)
	w.WriteOffset(sb.ExtensionAddress)
	w.WriteOffset(sb.EOFAddress)
	w.WriteOffset(sb.RootGroupAddress)
	w.WriteUint32(binpkg.Lookup3Checksum(buf.Bytes()))
	return buf.Bytes(), nil
}

// Write encodes the superblock at its file offset.
func (sb *Superblock) Write(w io.WriterAt) error {
	data, err := sb.Encode()
	if err != nil {
		return err
	}
	if _, err := w.WriteAt(data, sb.FileOffset); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}
