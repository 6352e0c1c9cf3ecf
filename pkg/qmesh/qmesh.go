// Package qmesh decodes quantized-mesh terrain tiles into triangle meshes.
//
// A tile is a compressed payload holding a fixed-size header, a vertex block
// of zigzag+delta coded 16-bit (u, v, height) triples, a high-water-mark coded
// triangle index block, four edge index lists and a chain of optional
// extension records. Decoding reconstructs the numeric arrays exactly as
// encoded; mapping them to world space is left to the caller.
package qmesh
