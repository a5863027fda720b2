// Package alloc hands out file space for a writable HDF5 file.
//
// Allocation is append-only: every block is placed at the current end of
// file, which then advances. Freed blocks (relocated headers, rewritten
// chunks) are only counted, never reused, so a file that sees many
// rewrites grows.
package alloc

import "sync"

// Kind classifies what an allocation holds.
type Kind int

const (
	KindHeader Kind = iota
	KindIndex
	KindChunk
	KindHeap
	KindContiguous
	numKinds
)

var kindNames = [numKinds]string{"header", "index", "chunk", "heap", "contiguous"}

func (k Kind) String() string {
	if k >= 0 && k < numKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Usage counts allocations of one kind.
type Usage struct {
	Allocations uint64
	Bytes       uint64
	FreedBytes  uint64
}

// Stats summarizes allocator activity since the file was opened.
type Stats struct {
	EOF     uint64
	ByKind  [numKinds]Usage
	Largest uint64
}

// Allocated returns the total bytes allocated across all kinds.
func (s Stats) Allocated() uint64 {
	var n uint64
	for _, u := range s.ByKind {
		n += u.Bytes
	}
	return n
}

// Freed returns the total bytes released across all kinds.
func (s Stats) Freed() uint64 {
	var n uint64
	for _, u := range s.ByKind {
		n += u.FreedBytes
	}
	return n
}

// Allocator is safe for concurrent use.
type Allocator struct {
	mu    sync.Mutex
	eof   uint64
	stats Stats
}

// New returns an allocator whose first block starts at eof.
func New(eof uint64) *Allocator {
	return &Allocator{eof: eof}
}

// Alloc reserves size bytes at the end of file.
func (a *Allocator) Alloc(size uint64, kind Kind) uint64 {
	return a.AllocAligned(size, 1, kind)
}

// AllocAligned reserves size bytes starting at a multiple of alignment.
func (a *Allocator) AllocAligned(size, alignment uint64, kind Kind) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if alignment > 1 {
		if rem := a.eof % alignment; rem != 0 {
			a.eof += alignment - rem
		}
	}
	addr := a.eof
	if size == 0 {
		return addr
	}
	a.eof += size

	u := &a.stats.ByKind[kind]
	u.Allocations++
	u.Bytes += size
	if size > a.stats.Largest {
		a.stats.Largest = size
	}
	return addr
}

// Free records that a block is no longer referenced.
func (a *Allocator) Free(addr, size uint64, kind Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.ByKind[kind].FreedBytes += size
}

// EOF returns the current end-of-file address.
func (a *Allocator) EOF() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

// SetEOF moves the end of file, for example after loading an existing file.
func (a *Allocator) SetEOF(eof uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eof = eof
}

// Stats returns a snapshot of the allocation counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.EOF = a.eof
	return s
}
