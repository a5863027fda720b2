package hdf5

import (
	"fmt"
	"math"
)

// Chunk size heuristic bounds, in bytes.
const (
	ChunkBase = 16 * 1024   // multiplier by which chunks are adjusted
	ChunkMin  = 8 * 1024    // soft lower limit
	ChunkMax  = 1024 * 1024 // hard upper limit
)

// GuessChunk picks a chunk shape for a dataset of the given shape and
// element size. The target chunk size grows with the dataset, doubling for
// every tenfold increase past 1 MiB, and is kept between ChunkMin and
// ChunkMax. Dimensions are halved in turn until the chunk is near the
// target.
func GuessChunk(shape []uint64, elemSize int) ([]uint64, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: cannot chunk a scalar dataspace", ErrInvalidArgument)
	}
	if elemSize <= 0 {
		return nil, fmt.Errorf("%w: element size %d", ErrInvalidArgument, elemSize)
	}

	total := float64(elemSize)
	chunks := make([]float64, len(shape))
	for i, d := range shape {
		total *= float64(d)
		chunks[i] = math.Max(float64(d), 1)
	}
	target := float64(ChunkMin)
	if total > 0 {
		target = ChunkBase * math.Pow(2, math.Log10(total/(1024*1024)))
		target = math.Min(math.Max(target, ChunkMin), ChunkMax)
	}

	rank := len(shape)
	for i := 0; i < rank*64; i++ {
		n := 1.0
		for _, c := range chunks {
			n *= c
		}
		size := n * float64(elemSize)
		if size < target || (math.Abs(size-target)/target < 0.5 && size < ChunkMax) {
			break
		}
		if n == 1 {
			break
		}
		for chunks[i%rank] == 1 {
			i++
		}
		chunks[i%rank] = math.Ceil(chunks[i%rank] / 2)
	}

	out := make([]uint64, rank)
	for i, c := range chunks {
		out[i] = uint64(c)
	}
	return out, nil
}
