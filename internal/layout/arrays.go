package layout

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// arrayElement is one chunk record of a fixed or extensible array index.
type arrayElement struct {
	index    uint64
	addr     uint64
	size     uint64
	mask     uint32
	filtered bool
}

// Client IDs of the array structures.
const (
	clientChunks         = 0
	clientFilteredChunks = 1
)

// readChecked reads size bytes at addr followed by their lookup3 checksum.
func readChecked(r *binary.Reader, addr uint64, size int, sig string) ([]byte, error) {
	raw, err := r.At(int64(addr)).ReadBytes(size + 4)
	if err != nil {
		return nil, fmt.Errorf("%s at %d: %w", sig, addr, err)
	}
	if string(raw[:4]) != sig {
		return nil, fmt.Errorf("%w: %s signature at %d", ErrInvalidIndex, sig, addr)
	}
	if binary.Lookup3Checksum(raw[:size]) != r.ByteOrder().Uint32(raw[size:]) {
		return nil, fmt.Errorf("%w: %s checksum at %d", ErrInvalidIndex, sig, addr)
	}
	return raw[:size], nil
}

// elementCodec decodes array elements of one client type.
type elementCodec struct {
	cfg      binary.Config
	client   uint8
	elemSize int
}

func (c elementCodec) decode(raw []byte, index uint64) arrayElement {
	br := binary.NewBytesReader(raw, c.cfg)
	e := arrayElement{index: index}
	e.addr, _ = br.ReadOffset()
	if c.client == clientFilteredChunks {
		e.filtered = true
		e.size, _ = br.ReadUintN(c.elemSize - c.cfg.OffsetSize - 4)
		e.mask, _ = br.ReadUint32()
	}
	return e
}

// decodeRun decodes n consecutive elements starting at index first.
func (c elementCodec) decodeRun(raw []byte, first uint64, n int, out []arrayElement) []arrayElement {
	for i := 0; i < n; i++ {
		out = append(out, c.decode(raw[i*c.elemSize:(i+1)*c.elemSize], first+uint64(i)))
	}
	return out
}

func newCodec(cfg binary.Config, client, elemSize uint8) (elementCodec, error) {
	c := elementCodec{cfg: cfg, client: client, elemSize: int(elemSize)}
	switch client {
	case clientChunks:
		if c.elemSize < cfg.OffsetSize {
			return c, fmt.Errorf("%w: element size %d", ErrInvalidIndex, elemSize)
		}
	case clientFilteredChunks:
		if w := c.elemSize - cfg.OffsetSize - 4; w < 1 || w > 8 {
			return c, fmt.Errorf("%w: filtered element size %d", ErrInvalidIndex, elemSize)
		}
	default:
		return c, fmt.Errorf("%w: array client %d", ErrInvalidIndex, client)
	}
	return c, nil
}

func bitSet(bitmap []byte, i uint64) bool {
	return bitmap[i/8]&(0x80>>(i%8)) != 0
}

// readFixedArray reads every element of a fixed array index.
func readFixedArray(r *binary.Reader, addr uint64) ([]arrayElement, error) {
	cfg := r.Config()
	O, L := cfg.OffsetSize, cfg.LengthSize
	hdr, err := readChecked(r, addr, 4+1+1+1+1+L+O, "FAHD")
	if err != nil {
		return nil, err
	}
	br := binary.NewBytesReader(hdr, cfg).At(5)
	client, _ := br.ReadUint8()
	elemSize, _ := br.ReadUint8()
	pageBits, _ := br.ReadUint8()
	n, _ := br.ReadLength()
	dblk, _ := br.ReadOffset()
	codec, err := newCodec(cfg, client, elemSize)
	if err != nil {
		return nil, err
	}
	if binary.IsUndefined(dblk) || n == 0 {
		return nil, nil
	}

	es := uint64(codec.elemSize)
	prefix := 4 + 1 + 1 + O
	pageLen := uint64(1) << pageBits
	if n <= pageLen {
		raw, err := readChecked(r, dblk, prefix+int(n*es), "FADB")
		if err != nil {
			return nil, err
		}
		return codec.decodeRun(raw[prefix:], 0, int(n), nil), nil
	}

	pages := (n + pageLen - 1) / pageLen
	raw, err := readChecked(r, dblk, prefix+int((pages+7)/8), "FADB")
	if err != nil {
		return nil, err
	}
	bitmap := raw[prefix:]
	pageAt := dblk + uint64(len(raw)) + 4
	var out []arrayElement
	for p := uint64(0); p < pages; p++ {
		count := min(pageLen, n-p*pageLen)
		if bitSet(bitmap, p) {
			page, err := readPage(r, pageAt, int(count*es))
			if err != nil {
				return nil, err
			}
			out = codec.decodeRun(page, p*pageLen, int(count), out)
		}
		pageAt += count*es + 4
	}
	return out, nil
}

// readPage reads a data block page, which has a checksum but no header.
func readPage(r *binary.Reader, addr uint64, size int) ([]byte, error) {
	raw, err := r.At(int64(addr)).ReadBytes(size + 4)
	if err != nil {
		return nil, fmt.Errorf("array page at %d: %w", addr, err)
	}
	if binary.Lookup3Checksum(raw[:size]) != r.ByteOrder().Uint32(raw[size:]) {
		return nil, fmt.Errorf("%w: array page checksum at %d", ErrInvalidIndex, addr)
	}
	return raw[:size], nil
}

// superBlockInfo describes the data blocks reached through one super
// block slot of an extensible array.
type superBlockInfo struct {
	ndblks     uint64
	dblkElems  uint64
	startIndex uint64
}

type extensibleArray struct {
	r         *binary.Reader
	codec     elementCodec
	maxBits   uint8
	idxElems  uint64
	minPtrs   uint64
	pageBits  uint8
	maxIndex  uint64
	sblks     []superBlockInfo
	offsetLen int
}

func log2(v uint64) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// readExtensibleArray reads every element of an extensible array index:
// those in the index block, in the data blocks it points to directly, and
// in the data blocks reached through super blocks.
func readExtensibleArray(r *binary.Reader, addr uint64) ([]arrayElement, error) {
	cfg := r.Config()
	O, L := cfg.OffsetSize, cfg.LengthSize
	hdr, err := readChecked(r, addr, 4+1+1+6+6*L+O, "EAHD")
	if err != nil {
		return nil, err
	}
	br := binary.NewBytesReader(hdr, cfg).At(5)
	p, _ := br.ReadBytes(7)
	client, elemSize := p[0], p[1]
	ea := &extensibleArray{
		r:        r,
		maxBits:  p[2],
		idxElems: uint64(p[3]),
		minPtrs:  uint64(p[5]),
		pageBits: p[6],
	}
	minElems := uint64(p[4])
	br.Skip(int64(4 * L)) // super and data block counts and sizes
	ea.maxIndex, _ = br.ReadLength()
	br.Skip(int64(L)) // element count
	iblk, _ := br.ReadOffset()
	if ea.codec, err = newCodec(cfg, client, elemSize); err != nil {
		return nil, err
	}
	if minElems == 0 || ea.minPtrs == 0 || int(ea.maxBits) < log2(minElems) {
		return nil, fmt.Errorf("%w: extensible array parameters", ErrInvalidIndex)
	}
	if binary.IsUndefined(iblk) {
		return nil, nil
	}

	ea.offsetLen = (int(ea.maxBits) + 7) / 8
	nsblks := 1 + int(ea.maxBits) - log2(minElems)
	var start uint64
	for s := 0; s < nsblks; s++ {
		info := superBlockInfo{
			ndblks:     uint64(1) << (s / 2),
			dblkElems:  (uint64(1) << ((s + 1) / 2)) * minElems,
			startIndex: start,
		}
		start += info.ndblks * info.dblkElems
		ea.sblks = append(ea.sblks, info)
	}
	return ea.read(iblk)
}

func (ea *extensibleArray) read(iblk uint64) ([]arrayElement, error) {
	cfg := ea.r.Config()
	O := cfg.OffsetSize
	es := ea.codec.elemSize
	direct := 2 * log2(ea.minPtrs)
	ndblkAddrs := int(2 * (ea.minPtrs - 1))
	nsblkAddrs := len(ea.sblks) - direct
	if nsblkAddrs < 0 {
		nsblkAddrs = 0
	}
	prefix := 4 + 1 + 1 + O
	size := prefix + int(ea.idxElems)*es + (ndblkAddrs+nsblkAddrs)*O
	raw, err := readChecked(ea.r, iblk, size, "EAIB")
	if err != nil {
		return nil, err
	}
	n := min(ea.idxElems, ea.maxIndex)
	out := ea.codec.decodeRun(raw[prefix:], 0, int(n), nil)

	br := binary.NewBytesReader(raw, cfg).At(int64(prefix + int(ea.idxElems)*es))
	dblks := make([]uint64, ndblkAddrs)
	for i := range dblks {
		dblks[i], _ = br.ReadOffset()
	}
	sblkAddrs := make([]uint64, nsblkAddrs)
	for i := range sblkAddrs {
		sblkAddrs[i], _ = br.ReadOffset()
	}

	next := 0
	for s, info := range ea.sblks {
		first := ea.idxElems + info.startIndex
		if first >= ea.maxIndex {
			break
		}
		var addrs []uint64
		var bitmaps [][]byte
		if s < direct {
			if next+int(info.ndblks) > len(dblks) {
				return nil, fmt.Errorf("%w: index block has %d data blocks", ErrInvalidIndex, len(dblks))
			}
			addrs = dblks[next : next+int(info.ndblks)]
			next += int(info.ndblks)
		} else {
			a := sblkAddrs[s-direct]
			if binary.IsUndefined(a) {
				continue
			}
			if addrs, bitmaps, err = ea.readSuperBlock(a, info); err != nil {
				return nil, err
			}
		}
		for j, a := range addrs {
			base := first + uint64(j)*info.dblkElems
			if binary.IsUndefined(a) || base >= ea.maxIndex {
				continue
			}
			var bitmap []byte
			if bitmaps != nil {
				bitmap = bitmaps[j]
			}
			if out, err = ea.readDataBlock(a, info, base, bitmap, out); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (ea *extensibleArray) paged(info superBlockInfo) (bool, uint64) {
	pageLen := uint64(1) << ea.pageBits
	return info.dblkElems > pageLen, pageLen
}

// readSuperBlock returns the data block addresses of a super block and,
// for paged data blocks, each block's page initialization bitmap.
func (ea *extensibleArray) readSuperBlock(addr uint64, info superBlockInfo) ([]uint64, [][]byte, error) {
	cfg := ea.r.Config()
	O := cfg.OffsetSize
	prefix := 4 + 1 + 1 + O + ea.offsetLen
	bitmapLen := 0
	if paged, pageLen := ea.paged(info); paged {
		bitmapLen = int((info.dblkElems/pageLen + 7) / 8)
	}
	raw, err := readChecked(ea.r, addr, prefix+int(info.ndblks)*(bitmapLen+O), "EASB")
	if err != nil {
		return nil, nil, err
	}
	var bitmaps [][]byte
	if bitmapLen > 0 {
		bitmaps = make([][]byte, info.ndblks)
		for i := range bitmaps {
			at := prefix + i*bitmapLen
			bitmaps[i] = raw[at : at+bitmapLen]
		}
	}
	br := binary.NewBytesReader(raw, cfg).At(int64(prefix + int(info.ndblks)*bitmapLen))
	addrs := make([]uint64, info.ndblks)
	for i := range addrs {
		addrs[i], _ = br.ReadOffset()
	}
	return addrs, bitmaps, nil
}

// readDataBlock appends the elements of one data block. A nil bitmap
// marks every page as initialized.
func (ea *extensibleArray) readDataBlock(addr uint64, info superBlockInfo, base uint64, bitmap []byte, out []arrayElement) ([]arrayElement, error) {
	O := ea.r.OffsetSize()
	es := uint64(ea.codec.elemSize)
	prefix := 4 + 1 + 1 + O + ea.offsetLen
	count := min(info.dblkElems, ea.maxIndex-base)
	paged, pageLen := ea.paged(info)
	if !paged {
		raw, err := readChecked(ea.r, addr, prefix+int(info.dblkElems*es), "EADB")
		if err != nil {
			return nil, err
		}
		return ea.codec.decodeRun(raw[prefix:], base, int(count), out), nil
	}
	if _, err := readChecked(ea.r, addr, prefix, "EADB"); err != nil {
		return nil, err
	}
	pageAt := addr + uint64(prefix) + 4
	for p := uint64(0); p*pageLen < count; p++ {
		if bitmap == nil || bitSet(bitmap, p) {
			page, err := readPage(ea.r, pageAt, int(pageLen*es))
			if err != nil {
				return nil, err
			}
			out = ea.codec.decodeRun(page, base+p*pageLen, int(min(pageLen, count-p*pageLen)), out)
		}
		pageAt += pageLen*es + 4
	}
	return out, nil
}
