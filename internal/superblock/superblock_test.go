package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
)

func TestRoundTripV2(t *testing.T) {
	for _, size := range []int{4, 8} {
		sb := New(size, size)
		sb.EOFAddress = 4096
		sb.RootGroupAddress = 48

		var buf binpkg.Buffer
		if err := sb.Write(&buf); err != nil {
			t.Fatal(err)
		}
		if buf.Len() != sb.Size() {
			t.Fatalf("size %d: wrote %d bytes, Size() = %d", size, buf.Len(), sb.Size())
		}

		got, err := Read(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if got.Version != 2 || int(got.OffsetSize) != size || got.EOFAddress != 4096 || got.RootGroupAddress != 48 {
			t.Errorf("size %d: got %+v", size, got)
		}
		if !binpkg.IsUndefined(got.ExtensionAddress) {
			t.Errorf("size %d: extension address = 0x%x", size, got.ExtensionAddress)
		}
	}
}

func TestReadAfterUserBlock(t *testing.T) {
	sb := New(8, 8)
	sb.FileOffset = 512
	sb.BaseAddress = 512
	sb.EOFAddress = 1024

	var buf binpkg.Buffer
	if err := sb.Write(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if got.FileOffset != 512 || got.BaseAddress != 512 {
		t.Errorf("FileOffset=%d BaseAddress=%d", got.FileOffset, got.BaseAddress)
	}
}

func TestChecksumMismatch(t *testing.T) {
	data, err := New(8, 8).Encode()
	if err != nil {
		t.Fatal(err)
	}
	data[20] ^= 0xff
	if _, err := Read(bytes.NewReader(data)); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestNotHDF5(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("definitely not an hdf5 file at all"))); !errors.Is(err, ErrNotHDF5) {
		t.Errorf("expected ErrNotHDF5, got %v", err)
	}
}

func TestReadV0(t *testing.T) {
	le := binary.LittleEndian
	data := append([]byte{}, Signature...)
	data = append(data, 0, 0, 0, 0, 0, 8, 8, 0)
	data = le.AppendUint16(data, 4)  // leaf K
	data = le.AppendUint16(data, 16) // internal K
	data = le.AppendUint32(data, 0)  // flags
	data = le.AppendUint64(data, 0)  // base
	data = le.AppendUint64(data, binpkg.Undefined)
	data = le.AppendUint64(data, 2048) // EOF
	data = le.AppendUint64(data, binpkg.Undefined)
	data = le.AppendUint64(data, 0)   // link name offset
	data = le.AppendUint64(data, 96)  // object header
	data = le.AppendUint32(data, 1)   // cache type
	data = le.AppendUint32(data, 0)   // reserved
	data = le.AppendUint64(data, 136) // B-tree
	data = le.AppendUint64(data, 680) // heap

	sb, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if sb.Version != 0 || sb.GroupLeafNodeK != 4 || sb.GroupInternalNodeK != 16 {
		t.Errorf("header fields: %+v", sb)
	}
	if sb.EOFAddress != 2048 || sb.RootGroupAddress != 96 {
		t.Errorf("EOF=%d root=%d", sb.EOFAddress, sb.RootGroupAddress)
	}
	if sb.RootBTreeAddress != 136 || sb.RootHeapAddress != 680 {
		t.Errorf("scratch pad: btree=%d heap=%d", sb.RootBTreeAddress, sb.RootHeapAddress)
	}
	if sb.Writable() {
		t.Error("version 0 superblock should not be writable")
	}
	if _, err := sb.Encode(); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Encode v0: %v", err)
	}
}
