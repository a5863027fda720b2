package btree

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/heap"
)

var signatureSymbolNode = []byte("SNOD")

// GroupEntry is one member of an old-style group.
type GroupEntry struct {
	Name          string
	ObjectAddress uint64
	Soft          bool
	SoftPath      string
}

// Symbol table entry cache types.
const (
	cacheNone     = 0
	cacheObject   = 1
	cacheSoftLink = 2
)

// ReadGroupEntries walks the group B-tree at address and returns every
// member, resolving names through the group's local heap.
func ReadGroupEntries(r *binary.Reader, address uint64, names *heap.Local) ([]GroupEntry, error) {
	var out []GroupEntry
	if err := readGroupNode(r, address, names, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readGroupNode(r *binary.Reader, address uint64, names *heap.Local, out *[]GroupEntry) error {
	nr := r.At(int64(address))
	hdr, err := nr.ReadBytes(8)
	if err != nil {
		return fmt.Errorf("group B-tree node at %d: %w", address, err)
	}
	if string(hdr[:4]) != string(signatureV1) || hdr[4] != nodeTypeGroup {
		return fmt.Errorf("%w: group node at %d", ErrInvalidNode, address)
	}
	level := hdr[5]
	used := int(r.ByteOrder().Uint16(hdr[6:8]))
	nr.Skip(int64(2 * nr.OffsetSize()))

	for i := 0; i < used; i++ {
		nr.Skip(int64(nr.LengthSize())) // key: heap offset of the boundary name
		child, err := nr.ReadOffset()
		if err != nil {
			return err
		}
		if level > 0 {
			err = readGroupNode(r, child, names, out)
		} else {
			err = readSymbolNode(r, child, names, out)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readSymbolNode(r *binary.Reader, address uint64, names *heap.Local, out *[]GroupEntry) error {
	nr := r.At(int64(address))
	hdr, err := nr.ReadBytes(8)
	if err != nil {
		return fmt.Errorf("symbol node at %d: %w", address, err)
	}
	if string(hdr[:4]) != string(signatureSymbolNode) || hdr[4] != 1 {
		return fmt.Errorf("%w: symbol node at %d", ErrInvalidNode, address)
	}
	n := int(r.ByteOrder().Uint16(hdr[6:8]))
	for i := 0; i < n; i++ {
		e, err := readSymbolEntry(nr, names)
		if err != nil {
			return fmt.Errorf("symbol node at %d entry %d: %w", address, i, err)
		}
		if e.Name != "" {
			*out = append(*out, e)
		}
	}
	return nil
}

func readSymbolEntry(r *binary.Reader, names *heap.Local) (GroupEntry, error) {
	var e GroupEntry
	nameOff, err := r.ReadOffset()
	if err != nil {
		return e, err
	}
	if e.ObjectAddress, err = r.ReadOffset(); err != nil {
		return e, err
	}
	cache, err := r.ReadUint32()
	if err != nil {
		return e, err
	}
	r.Skip(4)
	scratch, err := r.ReadBytes(16)
	if err != nil {
		return e, err
	}
	if e.Name, err = names.String(nameOff); err != nil {
		return e, err
	}
	if cache == cacheSoftLink {
		e.Soft = true
		e.ObjectAddress = binary.Undefined
		if e.SoftPath, err = names.String(uint64(r.ByteOrder().Uint32(scratch[:4]))); err != nil {
			return e, err
		}
	}
	return e, nil
}
