package hdf5

import (
	"path"

	"github.com/robert-malhotra/go-arf/internal/btree"
	"github.com/robert-malhotra/go-arf/internal/object"
)

// objState is the shared in-memory view of one object. Every handle on the
// object points at the same state, so a dataset extended through one
// handle is seen at its new size through all of them.
type objState struct {
	f    *File
	addr uint64
	// slot is the number of bytes reserved for the header at addr.
	slot uint64
	hdr  *object.Header

	parent *objState
	name   string
	path   string
	depth  int

	dirty bool
	// refs counts open handles. An unlinked object is forgotten when it
	// drops to zero.
	refs     int
	unlinked bool

	// members of an old-style group, read once.
	entries []btree.GroupEntry

	ds *dataset
}

// detached reports whether st or one of its ancestors was unlinked.
func (st *objState) detached() bool {
	for s := st; s != nil; s = s.parent {
		if s.unlinked {
			return true
		}
	}
	return false
}

// writable returns the error any mutation of st fails with, or nil.
func (st *objState) writable() error {
	return st.f.roErr
}

// Node is the part of a handle shared by groups and datasets: identity,
// lifetime and attributes.
type Node struct {
	st     *objState
	path   string
	closed bool
}

func newNode(st *objState, p string) Node {
	st.refs++
	return Node{st: st, path: p}
}

// acquire locks the file and returns the object state. Callers must call
// release when it succeeds.
func (n *Node) acquire() (*objState, error) {
	f := n.st.f
	f.mu.Lock()
	if n.closed || f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	return n.st, nil
}

func (n *Node) release() { n.st.f.mu.Unlock() }

// Name returns the last component of the path the object was opened by.
func (n *Node) Name() string {
	if n.path == "/" {
		return "/"
	}
	return path.Base(n.path)
}

// Path returns the absolute path the object was opened by.
func (n *Node) Path() string { return n.path }

// File returns the file the object belongs to.
func (n *Node) File() *File { return n.st.f }

// Close releases the handle. Closing twice is a no-op. Data and metadata
// are persisted by File.Flush and File.Close, not by closing handles.
func (n *Node) Close() error {
	f := n.st.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if n.st.refs > 0 {
		n.st.refs--
	}
	if st := n.st; st.refs == 0 && st.unlinked && f.objects[st.addr] == st {
		delete(f.objects, st.addr)
	}
	return nil
}

// Closed reports whether the handle or its file has been closed.
func (n *Node) Closed() bool {
	f := n.st.f
	f.mu.Lock()
	defer f.mu.Unlock()
	return n.closed || f.closed
}

func joinPath(dir, name string) string {
	return path.Join("/", dir, name)
}
