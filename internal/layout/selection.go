package layout

import (
	"fmt"
	"sort"
)

// Run is a span of consecutive coordinates along one dimension.
type Run struct {
	Start, Len uint64
}

func (r Run) end() uint64 { return r.Start + r.Len }

// Selection lists, for every dimension, the selected coordinates as sorted
// non-overlapping runs. The selected elements are the Cartesian product of
// the dimensions, visited in row-major order. A rank 0 selection selects
// the single element of a scalar.
type Selection [][]Run

// All selects every element of an extent.
func All(dims []uint64) Selection {
	return Box(make([]uint64, len(dims)), dims)
}

// Box selects count elements starting at start in every dimension.
func Box(start, count []uint64) Selection {
	s := make(Selection, len(start))
	for d := range start {
		if count[d] > 0 {
			s[d] = []Run{{start[d], count[d]}}
		}
	}
	return s
}

// Hyperslab selects count blocks of block elements, stride apart, from
// start in every dimension. A nil block means blocks of one element.
// Adjacent blocks are merged.
func Hyperslab(start, stride, count, block []uint64) (Selection, error) {
	s := make(Selection, len(start))
	for d := range start {
		b := uint64(1)
		if block != nil {
			b = block[d]
		}
		if count[d] == 0 || b == 0 {
			continue
		}
		if count[d] > 1 && stride[d] < b {
			return nil, fmt.Errorf("dimension %d: stride %d smaller than block %d", d, stride[d], b)
		}
		if stride[d] == b {
			s[d] = []Run{{start[d], b * count[d]}}
			continue
		}
		runs := make([]Run, count[d])
		for i := range runs {
			runs[i] = Run{start[d] + uint64(i)*stride[d], b}
		}
		s[d] = runs
	}
	return s, nil
}

// Shape returns the number of selected coordinates in each dimension.
func (s Selection) Shape() []uint64 {
	shape := make([]uint64, len(s))
	for d, runs := range s {
		for _, r := range runs {
			shape[d] += r.Len
		}
	}
	return shape
}

// Len returns the number of selected elements.
func (s Selection) Len() uint64 {
	n := uint64(1)
	for _, v := range s.Shape() {
		n *= v
	}
	return n
}

// Within reports whether every selected coordinate lies inside dims.
func (s Selection) Within(dims []uint64) bool {
	if len(dims) != len(s) {
		return false
	}
	for d, runs := range s {
		if len(runs) > 0 && runs[len(runs)-1].end() > dims[d] {
			return false
		}
	}
	return true
}

// covers reports whether the selection includes every element of the box.
func (s Selection) covers(origin, dims []uint64) bool {
	for d, runs := range s {
		lo, hi := origin[d], origin[d]+dims[d]
		i := sort.Search(len(runs), func(i int) bool { return runs[i].end() > lo })
		if i == len(runs) || runs[i].Start > lo || runs[i].end() < hi {
			return false
		}
	}
	return true
}

// chunkOrigins calls fn with the first element of every chunk that holds at
// least one selected element, in row-major chunk order.
func (s Selection) chunkOrigins(chunk []uint64, fn func(origin []uint64) error) error {
	rank := len(s)
	per := make([][]uint64, rank)
	for d, runs := range s {
		c := chunk[d]
		for _, r := range runs {
			if r.Len == 0 {
				continue
			}
			for i := r.Start / c; i <= (r.end()-1)/c; i++ {
				o := i * c
				if n := len(per[d]); n == 0 || per[d][n-1] < o {
					per[d] = append(per[d], o)
				}
			}
		}
		if len(per[d]) == 0 {
			return nil
		}
	}
	origin := make([]uint64, rank)
	idx := make([]int, rank)
	for {
		for d := range origin {
			origin[d] = per[d][idx[d]]
		}
		if err := fn(origin); err != nil {
			return err
		}
		d := rank - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < len(per[d]) {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

// piece is the part of one run that falls inside a box.
type piece struct {
	coord uint64 // dataset coordinate of the first element
	pos   uint64 // index of that coordinate within the selection's dimension
	n     uint64
}

// transfer copies the selected elements that fall inside a box between
// the box's dense buffer and a packed selection buffer. toBox chooses the
// direction. It returns the number of elements copied.
func transfer(origin, dims []uint64, box []byte, sel Selection, packed []byte, elemSize int, toBox bool) uint64 {
	rank := len(sel)
	if rank == 0 {
		if toBox {
			copy(box[:elemSize], packed)
		} else {
			copy(packed[:elemSize], box)
		}
		return 1
	}

	shape := sel.Shape()
	pieces := make([][]piece, rank)
	for d, runs := range sel {
		lo, hi := origin[d], origin[d]+dims[d]
		i := sort.Search(len(runs), func(i int) bool { return runs[i].end() > lo })
		var pos uint64
		for _, r := range runs[:i] {
			pos += r.Len
		}
		for ; i < len(runs) && runs[i].Start < hi; i++ {
			r := runs[i]
			first, last := max(r.Start, lo), min(r.end(), hi)
			pieces[d] = append(pieces[d], piece{first, pos + first - r.Start, last - first})
			pos += r.Len
		}
		if len(pieces[d]) == 0 {
			return 0
		}
	}

	boxStride := make([]uint64, rank)
	outStride := make([]uint64, rank)
	boxStride[rank-1], outStride[rank-1] = 1, 1
	for d := rank - 2; d >= 0; d-- {
		boxStride[d] = boxStride[d+1] * dims[d+1]
		outStride[d] = outStride[d+1] * shape[d+1]
	}

	es := uint64(elemSize)
	var copied uint64
	var walk func(d int, boxOff, outOff uint64)
	walk = func(d int, boxOff, outOff uint64) {
		for _, p := range pieces[d] {
			if d == rank-1 {
				b := (boxOff + p.coord - origin[d]) * es
				o := (outOff + p.pos) * es
				n := p.n * es
				if toBox {
					copy(box[b:b+n], packed[o:o+n])
				} else {
					copy(packed[o:o+n], box[b:b+n])
				}
				copied += p.n
				continue
			}
			for i := uint64(0); i < p.n; i++ {
				walk(d+1,
					boxOff+(p.coord-origin[d]+i)*boxStride[d],
					outOff+(p.pos+i)*outStride[d])
			}
		}
	}
	walk(0, 0, 0)
	return copied
}
