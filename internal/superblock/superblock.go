// Package superblock reads and writes the HDF5 superblock, the fixed entry
// point that records address widths, the end-of-file address and the root
// group's object header.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
)

// Signature is the 8-byte HDF5 format signature.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// The signature may sit behind a user block of 0, 512, 1024, 2048... bytes.
const maxSearchOffset = 1 << 20

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrChecksum           = errors.New("superblock checksum mismatch")
)

// Superblock holds the fields of every superblock version that this module
// uses. Version 0/1 files additionally describe the root group through a
// symbol table entry whose scratch pad may carry the B-tree and heap.
type Superblock struct {
	Version    uint8
	OffsetSize uint8
	LengthSize uint8
	Flags      uint8

	BaseAddress      uint64
	ExtensionAddress uint64
	EOFAddress       uint64
	RootGroupAddress uint64

	// Version 0/1 only.
	GroupLeafNodeK     uint16
	GroupInternalNodeK uint16
	IndexedStorageK    uint16
	RootBTreeAddress   uint64
	RootHeapAddress    uint64

	// FileOffset is where the signature was found.
	FileOffset int64
}

// New returns a version 2 superblock with 8-byte addresses and lengths.
func New(offsetSize, lengthSize int) *Superblock {
	return &Superblock{
		Version:          2,
		OffsetSize:       uint8(offsetSize),
		LengthSize:       uint8(lengthSize),
		ExtensionAddress: binpkg.Undefined,
	}
}

// Config returns the binary configuration implied by the superblock.
func (sb *Superblock) Config() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

// Writable reports whether this module can rewrite the superblock in place.
func (sb *Superblock) Writable() bool {
	return sb.Version == 2 || sb.Version == 3
}

// ChunkBTreeK is the half-rank of v1 chunk B-tree nodes for this file.
func (sb *Superblock) ChunkBTreeK() int {
	if sb.IndexedStorageK > 0 {
		return int(sb.IndexedStorageK)
	}
	return 32
}

// Read locates the signature and parses the superblock behind it.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, 9)
	for off := int64(0); off <= maxSearchOffset; {
		n, err := r.ReadAt(sig, off)
		if n < len(sig) {
			if err == nil || err == io.EOF {
				break
			}
			return nil, err
		}
		if bytes.Equal(sig[:8], Signature) {
			var sb *Superblock
			switch sig[8] {
			case 0, 1:
				sb, err = readV0(r, off, sig[8])
			case 2, 3:
				sb, err = readV2(r, off)
			default:
				return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, sig[8])
			}
			if err != nil {
				return nil, err
			}
			sb.FileOffset = off
			return sb, nil
		}
		if off == 0 {
			off = 512
		} else {
			off *= 2
		}
	}
	return nil, ErrNotHDF5
}

func readV0(src io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	fixed := make([]byte, 16)
	if _, err := src.ReadAt(fixed, off+8); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	sb := &Superblock{
		Version:            version,
		OffsetSize:         fixed[5],
		LengthSize:         fixed[6],
		GroupLeafNodeK:     binary.LittleEndian.Uint16(fixed[8:]),
		GroupInternalNodeK: binary.LittleEndian.Uint16(fixed[10:]),
		ExtensionAddress:   binpkg.Undefined,
	}
	if err := sb.Config().Validate(); err != nil {
		return nil, err
	}

	r := binpkg.NewReader(src, sb.Config()).At(off + 24)
	if version == 1 {
		k, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		sb.IndexedStorageK = k
		r.Skip(2)
	}

	var err error
	if sb.BaseAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	r.Skip(int64(sb.OffsetSize)) // free-space info
	if sb.EOFAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	r.Skip(int64(sb.OffsetSize)) // driver info

	// Root group symbol table entry: name offset, header address,
	// cache type, reserved, 16-byte scratch pad.
	r.Skip(int64(sb.OffsetSize))
	if sb.RootGroupAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	cacheType, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	r.Skip(4)
	if cacheType == 1 {
		if sb.RootBTreeAddress, err = r.ReadOffset(); err != nil {
			return nil, err
		}
		if sb.RootHeapAddress, err = r.ReadOffset(); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

func readV2(src io.ReaderAt, off int64) (*Superblock, error) {
	head := make([]byte, 4)
	if _, err := src.ReadAt(head, off+8); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	sb := &Superblock{
		Version:    head[0],
		OffsetSize: head[1],
		LengthSize: head[2],
		Flags:      head[3],
	}
	if err := sb.Config().Validate(); err != nil {
		return nil, err
	}

	size := sb.Size()
	raw := make([]byte, size)
	if _, err := src.ReadAt(raw, off); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	stored := binary.LittleEndian.Uint32(raw[size-4:])
	if binpkg.Lookup3Checksum(raw[:size-4]) != stored {
		return nil, ErrChecksum
	}

	r := binpkg.NewBytesReader(raw, sb.Config()).At(12)
	var err error
	if sb.BaseAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if sb.ExtensionAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if sb.EOFAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if sb.RootGroupAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	return sb, nil
}
