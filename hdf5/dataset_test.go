package hdf5

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func seq(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func readInts(t *testing.T, d *Dataset) []int32 {
	t.Helper()
	var got []int32
	if err := d.Read(&got); err != nil {
		t.Fatalf("Read %s: %v", d.Path(), err)
	}
	return got
}

func TestCreateDatasetContiguous(t *testing.T) {
	f := newTestFile(t)
	d, err := f.CreateDataset("grid", Int32, []uint64{2, 3})
	if err != nil {
		t.Fatalf("CreateDataset failed: %v", err)
	}
	if d.Layout() != "contiguous" || d.Chunks() != nil {
		t.Errorf("layout %s chunks %v, want contiguous", d.Layout(), d.Chunks())
	}
	if err := d.Write(seq(6)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readInts(t, d); !slices.Equal(got, seq(6)) {
		t.Errorf("got %v", got)
	}

	f = reopen(t, f, "r")
	d, err = f.OpenDataset("grid")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(d.Shape(), []uint64{2, 3}) || d.Rank() != 2 || d.NumElements() != 6 {
		t.Errorf("shape %v rank %d", d.Shape(), d.Rank())
	}
	if got := readInts(t, d); !slices.Equal(got, seq(6)) {
		t.Errorf("after reopen got %v", got)
	}
	if !d.Datatype().Equal(Int32) {
		t.Errorf("datatype %v, want int32", d.Datatype())
	}
	if err := d.Resize(3, 3); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Resize on read-only file: got %v", err)
	}
}

func TestCreateDatasetFrom(t *testing.T) {
	f := newTestFile(t)
	data := []float64{1.5, 2.5, 3.5}
	d, err := f.CreateDatasetFrom("x", data)
	if err != nil {
		t.Fatalf("CreateDatasetFrom failed: %v", err)
	}
	if d.Layout() != "chunked" {
		t.Errorf("layout = %s, want chunked", d.Layout())
	}
	if max := d.MaxShape(); len(max) != 1 || max[0] != Unlimited {
		t.Errorf("max shape = %v", max)
	}
	if !d.Dataspace().Extensible() {
		t.Error("dataspace should be extensible")
	}
	var got []float64
	if err := d.Read(&got); err != nil || !slices.Equal(got, data) {
		t.Errorf("got %v, %v", got, err)
	}

	// An empty source still gets a usable chunk shape.
	e, err := f.CreateDatasetFrom("empty", []int64{})
	if err != nil {
		t.Fatal(err)
	}
	if e.Len() != 0 || !slices.Equal(e.Chunks(), []uint64{1024}) {
		t.Errorf("empty dataset len %d chunks %v", e.Len(), e.Chunks())
	}

	m, err := f.CreateDatasetFrom("matrix", seq(12), WithShape(4, 3))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(m.Shape(), []uint64{4, 3}) || !slices.Equal(m.MaxShape(), []uint64{Unlimited, 3}) {
		t.Errorf("matrix shape %v max %v", m.Shape(), m.MaxShape())
	}
	if _, err := f.CreateDatasetFrom("bad", seq(5), WithShape(2, 3)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("shape mismatch: got %v", err)
	}
	if _, err := f.CreateDatasetFrom("scalar", 3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("non-slice data: got %v", err)
	}
}

func TestWriteGrows(t *testing.T) {
	f := newTestFile(t)
	d, err := f.CreateDatasetFrom("x", seq(3))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Write(seq(5)); err != nil {
		t.Fatalf("growing Write: %v", err)
	}
	if !slices.Equal(d.Shape(), []uint64{5}) {
		t.Errorf("shape = %v", d.Shape())
	}
	if err := d.Write(seq(2)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short Write: got %v, want ErrInvalidArgument", err)
	}
	if err := d.Write(7); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("non-slice Write: got %v", err)
	}
	if err := d.Write([]string{"a", "b", "c", "d", "e", "f", "g"}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("string Write: got %v, want ErrTypeMismatch", err)
	}
	if got := readInts(t, d); !slices.Equal(got, seq(5)) {
		t.Errorf("after failed Write: read %v, want %v", got, seq(5))
	}

	m, err := f.CreateDataset("m", Int32, []uint64{1, 2}, WithMaxShape(Unlimited, 2))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Write(seq(5)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("partial row: got %v", err)
	}
	if err := m.Write(seq(6)); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(m.Shape(), []uint64{3, 2}) {
		t.Errorf("shape = %v", m.Shape())
	}
}

func TestReadRange(t *testing.T) {
	f := newTestFile(t)
	d, err := f.CreateDatasetFrom("x", seq(10))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		count, offset, stride uint64
		want                  []int32
		err                   error
	}{
		{3, 2, 3, []int32{2, 5, 8}, nil},
		{4, 0, 3, []int32{0, 3, 6, 9}, nil},
		{1, 9, 1, []int32{9}, nil},
		{10, 0, 1, seq(10), nil},
		{0, 0, 1, []int32{}, nil},
		{4, 1, 3, nil, ErrRange},
		{1, 10, 1, nil, ErrRange},
		{11, 0, 1, nil, ErrRange},
		{2, 0, math.MaxUint64, nil, ErrRange},
		{1, 0, 0, nil, ErrInvalidArgument},
	}
	for _, tt := range tests {
		var got []int32
		err := d.ReadRange(&got, tt.count, tt.offset, tt.stride)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("ReadRange(%d, %d, %d): got %v, want %v", tt.count, tt.offset, tt.stride, err, tt.err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ReadRange(%d, %d, %d): %v", tt.count, tt.offset, tt.stride, err)
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("ReadRange(%d, %d, %d) = %v, want %v", tt.count, tt.offset, tt.stride, got, tt.want)
		}
	}

	// Whole rows of a two-dimensional dataset.
	m, err := f.CreateDatasetFrom("m", seq(12), WithShape(4, 3))
	if err != nil {
		t.Fatal(err)
	}
	var rows []int32
	if err := m.ReadRange(&rows, 2, 1, 2); err != nil {
		t.Fatal(err)
	}
	if want := []int32{3, 4, 5, 9, 10, 11}; !slices.Equal(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestReadHyperslab(t *testing.T) {
	f := newTestFile(t)
	d, err := f.CreateDataset("grid", Int32, []uint64{4, 5})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Write(seq(20)); err != nil {
		t.Fatal(err)
	}
	var got []int32
	err = d.ReadHyperslab(&got, Hyperslab{Offset: []uint64{1, 1}, Stride: []uint64{2, 2}, Count: []uint64{2, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int32{6, 8, 16, 18}; !slices.Equal(got, want) {
		t.Errorf("strided = %v, want %v", got, want)
	}
	err = d.ReadHyperslab(&got, Hyperslab{Offset: []uint64{0, 3}, Count: []uint64{1, 1}, Block: []uint64{2, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int32{3, 4, 8, 9}; !slices.Equal(got, want) {
		t.Errorf("block = %v, want %v", got, want)
	}
	if err := d.ReadHyperslab(&got, Hyperslab{Offset: []uint64{3, 0}, Count: []uint64{2, 1}}); !errors.Is(err, ErrRange) {
		t.Errorf("out of range: got %v", err)
	}
	if err := d.ReadHyperslab(&got, Hyperslab{Offset: []uint64{0}, Count: []uint64{1}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("wrong rank: got %v", err)
	}
}

func TestFilters(t *testing.T) {
	data := make([]float64, 5000)
	for i := range data {
		data[i] = math.Sin(float64(i) / 50)
	}
	tests := []struct {
		name string
		opts []DatasetOption
		want []string
	}{
		{"deflate", []DatasetOption{WithCompression(6)}, []string{"deflate"}},
		{"shuffle", []DatasetOption{WithShuffle(), WithCompression(1)}, []string{"shuffle", "deflate"}},
		{"fletcher32", []DatasetOption{WithFletcher32()}, []string{"fletcher32"}},
		{"snappy", []DatasetOption{WithSnappy()}, []string{"snappy"}},
		{"all", []DatasetOption{WithFletcher32(), WithSnappy(), WithCompression(9), WithShuffle()},
			[]string{"shuffle", "deflate", "snappy", "fletcher32"}},
	}
	f := newTestFile(t)
	for _, tt := range tests {
		opts := append([]DatasetOption{WithChunkSize(700)}, tt.opts...)
		if _, err := f.CreateDatasetFrom(tt.name, data, opts...); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
	}
	if _, err := f.CreateDatasetFrom("bad", data, WithCompression(10)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("deflate level 10: got %v", err)
	}

	f = reopen(t, f, "r")
	for _, tt := range tests {
		d, err := f.OpenDataset(tt.name)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := d.Filters(); !slices.Equal(got, tt.want) {
			t.Errorf("%s: filters %v, want %v", tt.name, got, tt.want)
		}
		if !slices.Equal(d.Chunks(), []uint64{700}) {
			t.Errorf("%s: chunks %v", tt.name, d.Chunks())
		}
		var got []float64
		if err := d.Read(&got); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !slices.Equal(got, data) {
			t.Errorf("%s: data differs after round trip", tt.name)
		}
	}
}

func TestManyChunks(t *testing.T) {
	f := newTestFile(t)
	// 200 chunks need more than one level of chunk index.
	d, err := f.CreateDatasetFrom("x", seq(2000), WithChunks(10))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Write(seq(2000)); err != nil {
		t.Fatal(err)
	}

	f = reopen(t, f, "a")
	d, err = f.OpenDataset("x")
	if err != nil {
		t.Fatal(err)
	}
	if got := readInts(t, d); !slices.Equal(got, seq(2000)) {
		t.Fatalf("after reopen got %d values", len(got))
	}
	if err := d.Write(seq(2500)); err != nil {
		t.Fatalf("extending after reopen: %v", err)
	}

	f = reopen(t, f, "r")
	d, err = f.OpenDataset("x")
	if err != nil {
		t.Fatal(err)
	}
	if got := readInts(t, d); !slices.Equal(got, seq(2500)) {
		t.Errorf("after second reopen got %d values", len(got))
	}
	var tail []int32
	if err := d.ReadRange(&tail, 3, 2497, 1); err != nil || !slices.Equal(tail, []int32{2497, 2498, 2499}) {
		t.Errorf("tail = %v, %v", tail, err)
	}
}

func TestResize(t *testing.T) {
	f := newTestFile(t)
	d, err := f.CreateDataset("r", Float32, []uint64{0, 3}, WithMaxShape(Unlimited, 3))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Resize(4, 3); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	var got []float32
	if err := d.Read(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 12 || got[11] != 0 {
		t.Errorf("unwritten data = %v, want 12 zeros", got)
	}
	for _, dims := range [][]uint64{{4, 4}, {2, 3}, {5}} {
		if err := d.Resize(dims...); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Resize(%v): got %v, want ErrInvalidArgument", dims, err)
		}
	}

	fixed, err := f.CreateDataset("fixed", Float32, []uint64{3})
	if err != nil {
		t.Fatal(err)
	}
	if err := fixed.Resize(4); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("resizing a contiguous dataset: got %v", err)
	}

	f = reopen(t, f, "r")
	d, err = f.OpenDataset("r")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(d.Shape(), []uint64{4, 3}) {
		t.Errorf("shape after reopen = %v", d.Shape())
	}
}

func TestCreateDatasetErrors(t *testing.T) {
	f := newTestFile(t)
	if _, err := f.CreateDataset("a", Int8, []uint64{4}, WithMaxShape(2)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("max below shape: got %v", err)
	}
	if _, err := f.CreateDataset("b", Int8, []uint64{4}, WithMaxShape(4, 4)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("max rank mismatch: got %v", err)
	}
	if _, err := f.CreateDataset("c", Int8, []uint64{4}, WithChunks(0)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero chunk: got %v", err)
	}
	if _, err := f.CreateDataset("d", Int8, []uint64{4}, WithChunks(8)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("chunk beyond fixed max: got %v", err)
	}
	if _, err := f.CreateDataset("e", Int8, nil, WithCompression(1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("chunked scalar: got %v", err)
	}
	if f.Contains("a") || f.Contains("e") {
		t.Error("failed creation left a link behind")
	}
}

func TestReplaceDataset(t *testing.T) {
	f := newTestFile(t)
	if _, err := f.CreateDatasetFrom("d", seq(4)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.CreateDatasetFrom("d", seq(2)); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate: got %v, want ErrAlreadyExists", err)
	}
	if _, err := f.CreateDatasetFrom("d", []float32{9}, WithReplace()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	f = reopen(t, f, "r")
	d, err := f.OpenDataset("d")
	if err != nil {
		t.Fatal(err)
	}
	var got []float32
	if err := d.Read(&got); err != nil || !slices.Equal(got, []float32{9}) {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestScalarDataset(t *testing.T) {
	f := newTestFile(t)
	d, err := f.CreateDataset("s", Float64, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Write([]float64{3.25}); err != nil {
		t.Fatal(err)
	}
	if err := d.Write([]float64{1, 2}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("two values into a scalar: got %v", err)
	}
	f = reopen(t, f, "r")
	d, err = f.OpenDataset("s")
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 1 || d.Rank() != 0 || !d.Dataspace().Scalar() {
		t.Errorf("len %d rank %d", d.Len(), d.Rank())
	}
	var got []float64
	if err := d.Read(&got); err != nil || len(got) != 1 || got[0] != 3.25 {
		t.Errorf("got %v, %v", got, err)
	}
	if err := d.ReadRange(&got, 1, 0, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("range read of a scalar: got %v", err)
	}
}

func TestTypeConversion(t *testing.T) {
	f := newTestFile(t)
	d, err := f.CreateDatasetFrom("x", []float64{1.75, 1e12, -1e12, math.NaN()})
	if err != nil {
		t.Fatal(err)
	}
	var got []int16
	if err := d.Read(&got); err != nil {
		t.Fatal(err)
	}
	if want := []int16{1, math.MaxInt16, math.MinInt16, 0}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	var s []string
	if err := d.Read(&s); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("numbers into strings: got %v, want ErrTypeMismatch", err)
	}
}

func TestStringAndCompoundDatasets(t *testing.T) {
	type record struct {
		Sec  int64
		Usec int64
		Msg  string
	}
	f := newTestFile(t)
	if _, err := f.CreateDatasetFrom("names", []string{"alpha", "", "a longer string"}); err != nil {
		t.Fatal(err)
	}
	recs := []record{{1, 2, "first"}, {3, 4, "second"}}
	if _, err := f.CreateDatasetFrom("recs", recs); err != nil {
		t.Fatal(err)
	}
	f = reopen(t, f, "r")

	d, err := f.OpenDataset("names")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := d.Read(&names); err != nil || !slices.Equal(names, []string{"alpha", "", "a longer string"}) {
		t.Errorf("names = %q, %v", names, err)
	}

	d, err = f.OpenDataset("recs")
	if err != nil {
		t.Fatal(err)
	}
	var got []record
	if err := d.Read(&got); err != nil || !slices.Equal(got, recs) {
		t.Errorf("records = %+v, %v", got, err)
	}
	if m := d.Datatype().Members(); !slices.Equal(m, []string{"sec", "usec", "msg"}) {
		t.Errorf("members = %v", m)
	}
}

func TestDatasetHandlesShareState(t *testing.T) {
	f := newTestFile(t)
	a, err := f.CreateDatasetFrom("x", seq(2))
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.OpenDataset("/x")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Write(seq(8)); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 8 {
		t.Errorf("second handle sees length %d, want 8", b.Len())
	}
	c, err := b.Reopen()
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
	if got := readInts(t, c); !slices.Equal(got, seq(8)) {
		t.Errorf("got %v", got)
	}
}

func TestHeaderRelocation(t *testing.T) {
	f := newTestFile(t, WithHeaderSlack(0))
	g, err := f.CreateGroup("g")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Flush(); err != nil {
		t.Fatal(err)
	}
	// Adding links and attributes outgrows the header written above.
	for _, name := range []string{"a", "b", "c", "d"} {
		if _, err := g.CreateGroup(name); err != nil {
			t.Fatal(err)
		}
		if err := g.SetAttr(name, []float64{1, 2, 3, 4}); err != nil {
			t.Fatal(err)
		}
		if err := f.Flush(); err != nil {
			t.Fatalf("Flush after adding %s: %v", name, err)
		}
	}
	if f.SpaceStats().Freed() == 0 {
		t.Error("expected the outgrown header to be released")
	}

	f = reopen(t, f, "r")
	g, err = f.OpenGroup("g")
	if err != nil {
		t.Fatal(err)
	}
	members, _ := g.Members()
	if !slices.Equal(members, []string{"a", "b", "c", "d"}) {
		t.Errorf("members = %v", members)
	}
	if v, err := g.AttrFloats("d"); err != nil || len(v) != 4 {
		t.Errorf("attribute d = %v, %v", v, err)
	}
}
