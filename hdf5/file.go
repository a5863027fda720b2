package hdf5

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/golang/glog"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/dtype"
	"github.com/robert-malhotra/go-arf/internal/heap"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/object"
	"github.com/robert-malhotra/go-arf/internal/superblock"
)

// File is an open HDF5 file. The embedded Group is the root group.
//
// All handles opened from a File share one view of its objects, so data
// written through one handle is immediately visible through the others.
// Methods are safe for concurrent use.
type File struct {
	*Group

	mu    sync.Mutex
	path  string
	mode  string
	osf   *os.File
	r     *binary.Reader
	w     io.WriterAt
	sb    *superblock.Superblock
	cfg   binary.Config
	alloc *alloc.Allocator
	heap  *heap.Global
	slack uint64

	// roErr is returned by every mutation; nil when the file is writable.
	roErr error

	objects  map[uint64]*objState
	root     *objState
	external map[string]*File
	closed   bool
}

// OpenFile opens path in one of three modes:
//
//   - "r": the file must exist and is opened read-only;
//   - "a": the file is opened read-write, and created if absent;
//   - "w": the file is created, truncating any existing one.
//
// Files with a version 0 or 1 superblock can be read in every mode but not
// modified.
func OpenFile(path, mode string, opts ...FileOption) (*File, error) {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(o)
	}

	var f *File
	var err error
	switch mode {
	case "r":
		f, err = openExisting(path, false, o)
	case "a":
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			f, err = create(path, o)
		} else {
			f, err = openExisting(path, true, o)
		}
	case "w":
		f, err = create(path, o)
	default:
		err = fmt.Errorf("%w: mode %q", ErrInvalidArgument, mode)
	}
	if err != nil {
		return nil, wrap("open", path, err)
	}
	f.mode = mode
	log.V(1).Infof("opened %s (mode %s, superblock v%d)", path, mode, f.sb.Version)
	return f, nil
}

// Open opens an existing file read-only.
func Open(path string) (*File, error) {
	return OpenFile(path, "r")
}

// Create creates a new file, truncating any existing one.
func Create(path string, opts ...FileOption) (*File, error) {
	return OpenFile(path, "w", opts...)
}

func newFile(path string, osf *os.File, sb *superblock.Superblock, o *fileOptions) *File {
	f := &File{
		path:     path,
		osf:      osf,
		sb:       sb,
		cfg:      sb.Config(),
		slack:    uint64(o.headerSlack),
		objects:  make(map[uint64]*objState),
		external: make(map[string]*File),
	}
	var src io.ReaderAt = osf
	f.w = osf
	if sb.FileOffset > 0 {
		// Addresses are relative to the superblock when a user block
		// precedes it.
		src = io.NewSectionReader(osf, sb.FileOffset, math.MaxInt64-sb.FileOffset)
		f.w = io.NewOffsetWriter(osf, sb.FileOffset)
	}
	f.r = binary.NewReader(src, f.cfg)
	return f
}

func create(path string, o *fileOptions) (*File, error) {
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	sb := superblock.New(o.offsetSize, o.lengthSize)
	f := newFile(path, osf, sb, o)
	f.alloc = alloc.New(uint64(sb.Size()))
	f.heap = heap.NewGlobal(f.r, f.w, f.alloc)

	root, err := f.newObject(groupMessages(), nil, "")
	if err != nil {
		osf.Close()
		return nil, err
	}
	sb.RootGroupAddress = root.addr
	if err := f.setRoot(root); err != nil {
		osf.Close()
		return nil, err
	}
	if err := f.flush(); err != nil {
		osf.Close()
		return nil, err
	}
	return f, nil
}

func openExisting(path string, write bool, o *fileOptions) (*File, error) {
	flag := os.O_RDONLY
	if write {
		flag = os.O_RDWR
	}
	osf, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	sb, err := superblock.Read(osf)
	if err != nil {
		osf.Close()
		return nil, err
	}
	f := newFile(path, osf, sb, o)
	switch {
	case !write:
		f.roErr = ErrReadOnly
		f.w = nil
	case !sb.Writable():
		f.roErr = fmt.Errorf("%w: cannot modify a version %d superblock", ErrUnsupported, sb.Version)
		f.w = nil
	}

	eof := sb.EOFAddress
	if fi, err := osf.Stat(); err == nil {
		if size := uint64(fi.Size() - sb.FileOffset); binary.IsUndefined(eof) || size > eof {
			eof = size
		}
	}
	f.alloc = alloc.New(eof)
	f.heap = heap.NewGlobal(f.r, f.w, f.alloc)

	root, err := f.load(sb.RootGroupAddress, nil, "")
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("root group: %w", err)
	}
	if err := f.setRoot(root); err != nil {
		osf.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) setRoot(st *objState) error {
	if !st.hdr.IsGroup() {
		return fmt.Errorf("%w: root object is not a group", ErrNotGroup)
	}
	st.path = "/"
	f.root = st
	f.Group = &Group{Node: newNode(st, "/")}
	return nil
}

// Filename returns the path the file was opened with.
func (f *File) Filename() string { return f.path }

// Mode returns the mode the file was opened with.
func (f *File) Mode() string { return f.mode }

// Writable reports whether the file accepts modifications.
func (f *File) Writable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roErr == nil && !f.closed
}

// SuperblockVersion returns the version of the file's superblock.
func (f *File) SuperblockVersion() int { return int(f.sb.Version) }

// SpaceStats returns the file space allocated and released since the file
// was opened.
func (f *File) SpaceStats() alloc.Stats { return f.alloc.Stats() }

// Flush writes pending metadata: chunk indexes, object headers, deepest
// first, and the superblock.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return wrap("flush", f.path, ErrClosed)
	}
	return wrap("flush", f.path, f.flush())
}

// Close flushes a writable file and closes it. Every handle opened from
// the file becomes unusable. Closing twice is a no-op.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	err := f.flush()
	f.closed = true
	if n := f.openObjects(); n > 0 {
		log.V(1).Infof("closing %s with %d open handles", f.path, n)
	}
	for _, st := range f.objects {
		st.refs = 0
	}
	for name, ext := range f.external {
		if cerr := ext.Close(); cerr != nil {
			log.Warningf("closing external file %s: %v", name, cerr)
		}
	}
	if cerr := f.osf.Close(); err == nil {
		err = cerr
	}
	log.V(1).Infof("closed %s", f.path)
	return wrap("close", f.path, err)
}

// OpenObjects returns the number of group and dataset handles still open,
// not counting the file's own root group. It is 0 once the file is closed.
func (f *File) OpenObjects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}
	return f.openObjects()
}

func (f *File) openObjects() int {
	n := 0
	for _, st := range f.objects {
		n += st.refs
	}
	if !f.Group.closed {
		n--
	}
	return n
}

// ctx returns the conversion context for element data.
func (f *File) ctx() *dtype.Context {
	return &dtype.Context{Config: f.cfg, Heap: f.heap}
}

// openExternal opens the target file of an external link read-only.
func (f *File) openExternal(name string) (*File, error) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(filepath.Dir(f.path), name)
	}
	if ext, ok := f.external[name]; ok {
		return ext, nil
	}
	ext, err := OpenFile(name, "r")
	if err != nil {
		return nil, err
	}
	f.external[name] = ext
	return ext, nil
}

// live returns the objects reachable from the root in address order.
func (f *File) live() []*objState {
	out := make([]*objState, 0, len(f.objects))
	for _, st := range f.objects {
		if !st.detached() {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

func groupMessages() []message.Message {
	return []message.Message{message.NewLinkInfo(), &message.GroupInfo{}}
}

// newObject reserves a header for msgs, registers the object and marks it
// dirty. The caller links it into parent.
func (f *File) newObject(msgs []message.Message, parent *objState, name string) (*objState, error) {
	size, err := object.Size(msgs, f.cfg)
	if err != nil {
		return nil, err
	}
	slot := uint64(size) + f.slack
	addr := f.alloc.Alloc(slot, alloc.KindHeader)
	st := &objState{
		f:      f,
		addr:   addr,
		slot:   slot,
		hdr:    &object.Header{Version: 2, Address: addr, Size: slot, Messages: msgs},
		parent: parent,
		name:   name,
		dirty:  true,
	}
	if parent != nil {
		st.depth = parent.depth + 1
		st.path = joinPath(parent.path, name)
	}
	f.objects[addr] = st
	return st, nil
}

// load returns the state of the object whose header is at addr, reading
// the header on first use.
func (f *File) load(addr uint64, parent *objState, name string) (*objState, error) {
	if st, ok := f.objects[addr]; ok && !st.unlinked {
		return st, nil
	}
	hdr, err := object.Read(f.r, addr)
	if err != nil {
		return nil, err
	}
	st := &objState{f: f, addr: addr, slot: hdr.Size, hdr: hdr, parent: parent, name: name, path: "/"}
	if parent != nil {
		st.depth = parent.depth + 1
		st.path = joinPath(parent.path, name)
	}
	if hdr.IsDataset() {
		if st.ds, err = f.openDataset(st); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", st.path, err)
		}
	}
	f.objects[addr] = st
	return st, nil
}
