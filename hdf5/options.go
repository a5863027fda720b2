package hdf5

// FileOption configures file creation options.
type FileOption func(*fileOptions)

type fileOptions struct {
	offsetSize  int
	lengthSize  int
	headerSlack int
}

// DefaultHeaderSlack is the spare room reserved in every new object header
// so attributes and links can be added without moving it.
const DefaultHeaderSlack = 256

func defaultFileOptions() *fileOptions {
	return &fileOptions{
		offsetSize:  8,
		lengthSize:  8,
		headerSlack: DefaultHeaderSlack,
	}
}

// WithOffsetSize sets the size in bytes for file offsets (2, 4, or 8).
func WithOffsetSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.offsetSize = size
		}
	}
}

// WithLengthSize sets the size in bytes for lengths (2, 4, or 8).
func WithLengthSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.lengthSize = size
		}
	}
}

// WithHeaderSlack sets the bytes reserved past the end of each new object
// header.
func WithHeaderSlack(n int) FileOption {
	return func(o *fileOptions) {
		if n >= 0 {
			o.headerSlack = n
		}
	}
}

// DatasetOption configures dataset and packet table creation options.
type DatasetOption func(*datasetOptions)

// PacketTableOption configures packet table creation. Packet tables take
// the dataset options; only the defaults differ.
type PacketTableOption = DatasetOption

// attrDef holds an attribute definition for creation.
type attrDef struct {
	name  string
	value any
}

type datasetOptions struct {
	maxShape    []uint64
	chunks      []uint64
	compression int
	shuffle     bool
	fletcher32  bool
	snappy      bool
	attributes  []attrDef
	shape       []uint64
	replace     bool
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{compression: -1}
}

func defaultPacketTableOptions() *datasetOptions {
	return &datasetOptions{compression: 0, chunks: []uint64{DefaultPacketChunk}}
}

// WithMaxShape sets the maximum extent. Use Unlimited for a dimension that
// can grow without bound.
func WithMaxShape(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.maxShape = dims
	}
}

// WithChunks sets the chunk dimensions for a chunked dataset.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = dims
	}
}

// WithChunkSize sets the number of records per chunk of a packet table.
func WithChunkSize(n uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = []uint64{n}
	}
}

// WithCompression sets the deflate level (0-9). A negative level disables
// compression.
func WithCompression(level int) DatasetOption {
	return func(o *datasetOptions) {
		o.compression = level
	}
}

// WithShuffle enables the shuffle filter (improves compression).
func WithShuffle() DatasetOption {
	return func(o *datasetOptions) {
		o.shuffle = true
	}
}

// WithFletcher32 enables Fletcher32 checksum validation.
func WithFletcher32() DatasetOption {
	return func(o *datasetOptions) {
		o.fletcher32 = true
	}
}

// WithSnappy compresses chunks with snappy (filter 32003).
func WithSnappy() DatasetOption {
	return func(o *datasetOptions) {
		o.snappy = true
	}
}

// WithAttribute adds an attribute to the dataset. Any value accepted by
// SetAttr may be used. Multiple WithAttribute options can be used to add
// multiple attributes.
func WithAttribute(name string, value any) DatasetOption {
	return func(o *datasetOptions) {
		o.attributes = append(o.attributes, attrDef{name: name, value: value})
	}
}

// WithShape gives CreateDatasetFrom the dataset shape; the data must hold
// exactly that many elements.
func WithShape(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.shape = dims
	}
}

// WithReplace unlinks an existing object of the same name before creating.
func WithReplace() DatasetOption {
	return func(o *datasetOptions) {
		o.replace = true
	}
}
