package hdf5

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/metrics"
	"github.com/robert-malhotra/go-arf/internal/object"
)

// flush writes everything pending. The caller holds f.mu.
func (f *File) flush() (err error) {
	if f.roErr != nil {
		return nil
	}
	op := metrics.Ops.Start("flush")
	defer op.EndErr(&err)

	states := f.live()
	for _, st := range states {
		if err := st.syncIndex(); err != nil {
			return fmt.Errorf("%s: %w", st.path, err)
		}
	}

	// Writing (or moving) a header dirties its parent, so headers go out
	// one depth level at a time, deepest first.
	headers := 0
	for {
		var level []*objState
		depth := -1
		for _, st := range f.live() {
			if !st.dirty {
				continue
			}
			if st.depth > depth {
				depth, level = st.depth, level[:0]
			}
			if st.depth == depth {
				level = append(level, st)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, st := range level {
			if err := f.writeHeader(st); err != nil {
				return fmt.Errorf("%s: %w", st.path, err)
			}
			headers++
		}
	}

	eof := f.alloc.EOF()
	f.sb.EOFAddress = eof
	if err := f.sb.Write(f.osf); err != nil {
		return err
	}
	// Space that was reserved but never written still belongs to the file.
	fi, err := f.osf.Stat()
	if err != nil {
		return err
	}
	if end := f.sb.FileOffset + int64(eof); fi.Size() < end {
		if err := f.osf.Truncate(end); err != nil {
			return err
		}
	}
	if err := f.osf.Sync(); err != nil {
		return err
	}
	log.V(1).Infof("flushed %s: %d headers, eof %d", f.path, headers, eof)
	return nil
}

// writeHeader encodes st's messages into its reserved slot, moving the
// header first when it no longer fits.
func (f *File) writeHeader(st *objState) error {
	size, err := object.Size(st.hdr.Messages, f.cfg)
	if err != nil {
		return err
	}
	if st.hdr.Version != 2 || st.hdr.Continued || uint64(size) > st.slot {
		if err := f.relocate(st, uint64(size)); err != nil {
			return err
		}
	}
	buf, err := object.Encode(st.hdr.Messages, f.cfg, int(st.slot))
	if err != nil {
		return err
	}
	if _, err := f.w.WriteAt(buf, int64(st.addr)); err != nil {
		return err
	}
	metrics.BytesWritten.WithLabelValues("meta").Add(float64(len(buf)))
	log.V(2).Infof("wrote object header %s at %d (%d bytes)", st.path, st.addr, len(buf))
	st.dirty = false
	return nil
}

// relocate gives st a new header slot of size bytes plus slack and points
// the links to it there.
func (f *File) relocate(st *objState, size uint64) error {
	p := st.parent
	if p != nil && p.hdr.SymbolTable() != nil {
		return fmt.Errorf("%w: cannot move an object header out of an old-style group", ErrUnsupported)
	}
	slot := size + f.slack
	addr := f.alloc.Alloc(slot, alloc.KindHeader)
	if st.hdr.Version == 2 && !st.hdr.Continued {
		f.alloc.Free(st.addr, st.slot, alloc.KindHeader)
	}
	log.V(2).Infof("moving object header %s from %d to %d (%d bytes)", st.path, st.addr, addr, slot)

	old := st.addr
	delete(f.objects, old)
	st.addr, st.slot = addr, slot
	st.hdr.Version, st.hdr.Continued = 2, false
	st.hdr.Address, st.hdr.Size = addr, slot
	f.objects[addr] = st

	if p == nil {
		f.sb.RootGroupAddress = addr
		return nil
	}
	for _, l := range p.hdr.Links() {
		if l.IsHard() && l.ObjectAddress == old {
			l.ObjectAddress = addr
		}
	}
	p.dirty = true
	return nil
}
