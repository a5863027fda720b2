// Package layout moves dataset elements between file storage and packed
// memory buffers.
//
// A [Selection] names the elements of interest as per-dimension runs of
// coordinates. The storage backends ([Compact], [Contiguous] and
// [Chunked]) implement [Store]: Read gathers the selected elements into a
// packed row-major buffer and Write scatters a packed buffer back.
//
// Chunked storage keeps an in-memory table of chunk locations. [LoadIndex]
// fills it from any of the chunk index structures HDF5 defines: version 1
// and 2 B-trees, single chunk, implicit, fixed array and extensible array.
// New chunks are written immediately; the index itself is written by the
// caller with [Chunked.WriteIndex], which always produces a version 1
// B-tree.
package layout
