package hdf5

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// newTestFile creates a file in a temporary directory that is closed when
// the test ends.
func newTestFile(t *testing.T, opts ...FileOption) *File {
	t.Helper()
	f, err := Create(filepath.Join(t.TempDir(), "test.h5"), opts...)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

// reopen closes f and opens it again in mode.
func reopen(t *testing.T, f *File, mode string) *File {
	t.Helper()
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	g, err := OpenFile(f.Filename(), mode)
	if err != nil {
		t.Fatalf("OpenFile(%q) failed: %v", mode, err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestCreate(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "hdf5-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	testFile := filepath.Join(tmpDir, "test.h5")

	f, err := Create(testFile)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !f.Writable() {
		t.Error("File should be writable")
	}
	if f.Mode() != "w" {
		t.Errorf("Mode() = %q, want w", f.Mode())
	}
	if f.Path() != "/" {
		t.Errorf("root path = %q, want /", f.Path())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Fatal("File was not created")
	}

	f2, err := Open(testFile)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f2.Close()
	if f2.SuperblockVersion() < 2 {
		t.Errorf("Expected superblock version >= 2, got %d", f2.SuperblockVersion())
	}
	if f2.Writable() {
		t.Error("file opened with Open should be read-only")
	}
	n, err := f2.NumChildren()
	if err != nil || n != 0 {
		t.Errorf("NumChildren() = %d, %v; want 0", n, err)
	}
}

func TestCreateWithOptions(t *testing.T) {
	f := newTestFile(t, WithOffsetSize(4), WithLengthSize(4))
	if _, err := f.CreateGroup("g"); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := f.CreateDatasetFrom("d", []float64{1, 2, 3}); err != nil {
		t.Fatalf("CreateDatasetFrom failed: %v", err)
	}
	f = reopen(t, f, "r")
	d, err := f.OpenDataset("d")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	var got []float64
	if err := d.Read(&got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("got %v", got)
	}
	if !f.Contains("g") {
		t.Error("group g missing after reopen")
	}
}

func TestOpenModes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modes.h5")

	if _, err := OpenFile(path, "r"); !errors.Is(err, ErrNotFound) {
		t.Errorf("mode r on a missing file: got %v, want ErrNotFound", err)
	}
	if _, err := OpenFile(path, "x"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown mode: got %v, want ErrInvalidArgument", err)
	}

	// "a" creates a missing file.
	f, err := OpenFile(path, "a")
	if err != nil {
		t.Fatalf("mode a: %v", err)
	}
	if _, err := f.CreateGroup("kept"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// "a" keeps an existing one.
	f, err = OpenFile(path, "a")
	if err != nil {
		t.Fatalf("mode a on existing file: %v", err)
	}
	if !f.Contains("kept") {
		t.Error("mode a lost existing content")
	}
	f.Close()

	// "w" truncates.
	f, err = OpenFile(path, "w")
	if err != nil {
		t.Fatalf("mode w: %v", err)
	}
	defer f.Close()
	if f.Contains("kept") {
		t.Error("mode w kept existing content")
	}
}

func TestReadOnlyFile(t *testing.T) {
	f := newTestFile(t)
	if _, err := f.CreateGroup("g"); err != nil {
		t.Fatal(err)
	}
	f = reopen(t, f, "r")

	if _, err := f.CreateGroup("h"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("CreateGroup on read-only file: got %v, want ErrReadOnly", err)
	}
	if err := f.SetAttr("a", 1); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetAttr on read-only file: got %v, want ErrReadOnly", err)
	}
	if err := f.Unlink("g"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Unlink on read-only file: got %v, want ErrReadOnly", err)
	}
	if err := f.Flush(); err != nil {
		t.Errorf("Flush on read-only file: %v", err)
	}
}

func TestOpenNotHDF5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.h5")
	if err := os.WriteFile(path, []byte("this is not an HDF5 file at all, just some text padding"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrNotHDF5) {
		t.Fatalf("got %v, want ErrNotHDF5", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Op != "open" || e.Path != path {
		t.Errorf("error %v does not carry op and path", err)
	}
}

func TestDoubleClose(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "close.h5"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "closed.h5"))
	if err != nil {
		t.Fatal(err)
	}
	g, err := f.CreateGroup("g")
	if err != nil {
		t.Fatal(err)
	}
	d, err := f.CreateDatasetFrom("d", []int64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	var buf []int64
	if err := d.Read(&buf); !errors.Is(err, ErrClosed) {
		t.Errorf("Read on closed dataset: got %v, want ErrClosed", err)
	}
	f.Close()

	if _, err := g.CreateGroup("h"); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateGroup after file close: got %v, want ErrClosed", err)
	}
	if _, err := f.OpenGroup("g"); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenGroup after file close: got %v, want ErrClosed", err)
	}
	if !g.Closed() {
		t.Error("group handle should report closed")
	}
	if err := f.Flush(); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after close: got %v, want ErrClosed", err)
	}
}

func TestFlushPersists(t *testing.T) {
	f := newTestFile(t)
	if _, err := f.CreateDatasetFrom("d", []int32{7, 8, 9}); err != nil {
		t.Fatal(err)
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// A second reader sees the flushed state while the writer is open.
	r, err := Open(f.Filename())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	d, err := r.OpenDataset("d")
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	var got []int32
	if err := d.Read(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != 7 || got[2] != 9 {
		t.Errorf("got %v", got)
	}
}

func TestErrorMapping(t *testing.T) {
	err := wrap("op", "/x", ErrNotFound)
	if err.Error() != "hdf5: op /x: object not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Cause(err) != ErrNotFound {
		t.Errorf("Cause = %v", Cause(err))
	}
	if wrap("op", "", nil) != nil {
		t.Error("wrapping nil should give nil")
	}
	if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupported) {
		t.Error("errors.Is mapping is wrong")
	}
}
