package hdf5

import (
	"errors"
	"slices"
	"testing"
)

func TestGuessChunk(t *testing.T) {
	tests := []struct {
		shape    []uint64
		elemSize int
	}{
		{[]uint64{10}, 8},
		{[]uint64{1024}, 2},
		{[]uint64{1000000}, 8},
		{[]uint64{100000, 100000}, 8},
		{[]uint64{3, 5000, 7}, 4},
		{[]uint64{1 << 40}, 1},
	}
	for _, tt := range tests {
		chunks, err := GuessChunk(tt.shape, tt.elemSize)
		if err != nil {
			t.Fatalf("GuessChunk(%v): %v", tt.shape, err)
		}
		if len(chunks) != len(tt.shape) {
			t.Fatalf("GuessChunk(%v) = %v", tt.shape, chunks)
		}
		bytes := uint64(tt.elemSize)
		for i, c := range chunks {
			if c == 0 || c > max(tt.shape[i], 1) {
				t.Errorf("GuessChunk(%v) = %v: dimension %d out of bounds", tt.shape, chunks, i)
			}
			bytes *= c
		}
		if bytes > ChunkMax {
			t.Errorf("GuessChunk(%v) = %v: %d bytes exceeds ChunkMax", tt.shape, chunks, bytes)
		}
	}
}

func TestGuessChunkSmall(t *testing.T) {
	chunks, err := GuessChunk([]uint64{10, 3}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(chunks, []uint64{10, 3}) {
		t.Errorf("small dataset chunked as %v, want a single chunk", chunks)
	}
	chunks, err = GuessChunk([]uint64{0, 0}, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(chunks, []uint64{1, 1}) {
		t.Errorf("empty dataset chunked as %v", chunks)
	}
}

func TestGuessChunkErrors(t *testing.T) {
	if _, err := GuessChunk(nil, 8); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("scalar: got %v", err)
	}
	if _, err := GuessChunk([]uint64{10}, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero element size: got %v", err)
	}
}
