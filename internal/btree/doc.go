// Package btree reads and writes the HDF5 B-trees used by this module.
//
// Version 1 B-trees (signature "TREE") index both the members of old-style
// groups, through symbol table nodes ("SNOD"), and the chunks of chunked
// datasets. Chunk trees can be written as well as read: [WriteChunkIndex]
// builds a complete multi-level tree from a sorted chunk list.
//
// Version 2 B-trees ("BTHD") are read for chunk record types 10 and 11,
// as produced by files written with the latest format.
package btree
